package scanner

import (
	"fmt"
	"time"
)

// Config is the tuning bag for one scan invocation. Zero values mean
// "no cap" for MaxMessages and "no delay" for DelayBetweenBatches.
type Config struct {
	Kind                Kind
	BatchSize           int
	MaxMessages         int
	DelayBetweenBatches time.Duration
	UsePersistence      bool
}

// Overrides is a partial Config; nil fields leave the base value alone.
// Merging is shallow: a set override always wins.
type Overrides struct {
	BatchSize           *int
	MaxMessages         *int
	DelayBetweenBatches *time.Duration
	UsePersistence      *bool
}

// Apply returns a copy of c with the non-nil override fields applied.
func (c Config) Apply(o Overrides) Config {
	if o.BatchSize != nil {
		c.BatchSize = *o.BatchSize
	}
	if o.MaxMessages != nil {
		c.MaxMessages = *o.MaxMessages
	}
	if o.DelayBetweenBatches != nil {
		c.DelayBetweenBatches = *o.DelayBetweenBatches
	}
	if o.UsePersistence != nil {
		c.UsePersistence = *o.UsePersistence
	}
	return c
}

// BaseConfig returns the default tuning for a backend kind. The protocol
// backend favors large batches because bulk header fetch is cheap over a
// held session; the REST backend favors small pages and an inter-batch
// delay because the API is quota-limited.
func BaseConfig(kind Kind) (Config, error) {
	switch kind {
	case KindIMAP:
		return Config{
			Kind:           KindIMAP,
			BatchSize:      500,
			UsePersistence: true,
		}, nil
	case KindGmailAPI:
		return Config{
			Kind:                KindGmailAPI,
			BatchSize:           50,
			DelayBetweenBatches: 2 * time.Second,
			UsePersistence:      true,
		}, nil
	default:
		return Config{}, fmt.Errorf("unknown scanner kind %q", kind)
	}
}

// presets are named tunings layered over the backend base config.
var presets = map[string]Overrides{
	// fast trades completeness for latency: capped scan, no delay.
	"fast": {
		MaxMessages:         intPtr(1000),
		DelayBetweenBatches: durationPtr(0),
	},
	// thorough walks the whole mailbox with gentle pacing.
	"thorough": {
		MaxMessages:         intPtr(0),
		DelayBetweenBatches: durationPtr(3 * time.Second),
	},
	// recent samples only the newest slice of the mailbox.
	"recent": {
		MaxMessages:    intPtr(500),
		UsePersistence: boolPtr(false),
	},
	// full is the unbounded resumable scan.
	"full": {
		MaxMessages:    intPtr(0),
		UsePersistence: boolPtr(true),
	},
}

// PresetConfig returns the named preset for a backend kind. An empty name
// yields the base config unchanged.
func PresetConfig(kind Kind, name string) (Config, error) {
	base, err := BaseConfig(kind)
	if err != nil {
		return Config{}, err
	}
	if name == "" {
		return base, nil
	}

	o, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown scan preset %q", name)
	}
	return base.Apply(o), nil
}

func intPtr(v int) *int                      { return &v }
func boolPtr(v bool) *bool                   { return &v }
func durationPtr(v time.Duration) *time.Duration { return &v }

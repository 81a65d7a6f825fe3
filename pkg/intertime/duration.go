package intertime

import (
	"encoding/json"
	"time"
)

// Duration wraps time.Duration so configuration and JSON payloads can carry
// human-readable values such as "5m" or "500ms" instead of nanosecond integers.
//
// It implements cleanenv's Setter, so it can be used directly in env-tagged
// config structs:
//
//	type Query struct {
//		StaleTime Duration `env:"GQ_STALE_TIME" env-default:"5m"`
//	}
type Duration time.Duration

// SetValue parses s with time.ParseDuration. cleanenv calls it for env values.
func (d *Duration) SetValue(s string) error {
	if s == "" {
		*d = 0
		return nil
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// UnmarshalJSON accepts either a duration string ("1h30m") or a number of
// nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}

	return d.SetValue(s)
}

// UnmarshalText lets YAML and other text decoders use the same parsing.
func (d *Duration) UnmarshalText(b []byte) error {
	return d.SetValue(string(b))
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

package flamegraph

import (
	"fmt"
	"time"

	"github.com/google/pprof/profile"
	"github.com/spf13/afero"
)

// Profile converts collapsed stacks into a pprof CPU profile. frequencyHz is
// the sampling frequency used to record them and sets the sample period.
func Profile(stacks []Stack, frequencyHz int, duration time.Duration) *profile.Profile {
	period := int64(0)
	if frequencyHz > 0 {
		period = int64(time.Second) / int64(frequencyHz)
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType:    &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:        period,
		DurationNanos: duration.Nanoseconds(),
		TimeNanos:     time.Now().UnixNano(),
	}

	functions := make(map[string]*profile.Function)
	locations := make(map[string]*profile.Location)

	location := func(name string) *profile.Location {
		if loc, ok := locations[name]; ok {
			return loc
		}
		fn := functions[name]
		if fn == nil {
			fn = &profile.Function{
				ID:         uint64(len(p.Function) + 1),
				Name:       name,
				SystemName: name,
			}
			functions[name] = fn
			p.Function = append(p.Function, fn)
		}
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		locations[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, s := range stacks {
		if len(s.Frames) == 0 {
			continue
		}
		// pprof samples list the leaf first.
		locs := make([]*profile.Location, 0, len(s.Frames))
		for i := len(s.Frames) - 1; i >= 0; i-- {
			locs = append(locs, location(s.Frames[i]))
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: locs,
			Value:    []int64{s.Count, s.Count * period},
		})
	}
	return p
}

// WritePprof writes stacks as a gzipped pprof profile to path.
func WritePprof(fs afero.Fs, path string, stacks []Stack, frequencyHz int, duration time.Duration) error {
	p := Profile(stacks, frequencyHz, duration)
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	return f.Close()
}

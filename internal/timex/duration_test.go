package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"string", `"15m"`, 15 * time.Minute, false},
		{"nanoseconds", `1000000000`, time.Second, false},
		{"bad string", `"soon"`, 0, true},
		{"bool", `true`, 0, true},
		{"garbage", `{`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		TTL   Duration `yaml:"ttl"`
		Raw   Duration `yaml:"raw"`
		Empty Duration `yaml:"empty"`
	}
	err := yaml.Unmarshal([]byte("ttl: 2h\nraw: 500\n"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.TTL.Duration)
	assert.Equal(t, 500*time.Nanosecond, cfg.Raw.Duration)
	assert.Zero(t, cfg.Empty.Duration)

	err = yaml.Unmarshal([]byte("ttl: later\n"), &cfg)
	require.Error(t, err)

	err = yaml.Unmarshal([]byte("ttl: [1, 2]\n"), &cfg)
	require.Error(t, err)
}

package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty data dir returns ErrInvalidConfig",
			config:  Config{},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative busy timeout returns ErrInvalidConfig",
			config:  Config{DataDir: "/tmp/data", BusyTimeoutMillis: -1},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "data dir is valid",
			config:  Config{DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "in-memory needs no data dir",
			config:  Config{InMemory: true},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigBusyTimeoutDefault(t *testing.T) {
	if got := (Config{}).GetBusyTimeoutMillis(); got != DefaultBusyTimeoutMillis {
		t.Errorf("expected %d, got %d", DefaultBusyTimeoutMillis, got)
	}
	if got := (Config{BusyTimeoutMillis: 250}).GetBusyTimeoutMillis(); got != 250 {
		t.Errorf("expected 250, got %d", got)
	}
}

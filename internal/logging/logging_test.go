package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"debug", "console", false},
		{"", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			log, sync, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
			if err == nil {
				log.Info("logger ready")
				_ = sync()
			}
		})
	}
}

func TestDebugEnablesVerbosityOne(t *testing.T) {
	log, _, err := New("debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !log.V(1).Enabled() {
		t.Fatal("expected V(1) to be enabled at debug level")
	}
	log, _, _ = New("info", "json")
	if log.V(1).Enabled() {
		t.Fatal("expected V(1) to be disabled at info level")
	}
}

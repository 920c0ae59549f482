package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestNewConfigReadsEnvironment(t *testing.T) {
	t.Setenv("PROVIDER", ProviderLocalInference)
	t.Setenv("MIN_IMAGE_BYTES", "2048")
	t.Setenv("OLLAMA_MODEL", "qwen2.5-coder")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Provider != ProviderLocalInference {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Pipeline.MinImageBytes != 2048 {
		t.Errorf("MinImageBytes = %d", cfg.Pipeline.MinImageBytes)
	}
	if cfg.Ollama.Model != "qwen2.5-coder" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	// незаданные значения остаются дефолтными
	if cfg.Pipeline.MinOCRTextLength != 50 {
		t.Errorf("MinOCRTextLength = %d", cfg.Pipeline.MinOCRTextLength)
	}
}

func TestBindFlagsOverride(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	if err := fs.Parse([]string{"--provider=local-proxy", "--min-ocr-text-length=10", "--cloud-native-vision"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Provider != ProviderLocalProxy || cfg.Pipeline.MinOCRTextLength != 10 || !cfg.Cloud.NativeVision {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "gemini" }, wantErr: true},
		{name: "unknown vision backend", mutate: func(c *Config) { c.Vision.Backend = "x" }, wantErr: true},
		{name: "negative threshold", mutate: func(c *Config) { c.Pipeline.MinImageBytes = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

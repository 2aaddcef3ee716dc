package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-whisper/internal/config"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
	"github.com/loqalabs/loqa-whisper/internal/stt"
)

// BuildInfo assembles the startup announcement from the loaded engine and
// the model file on disk.
func BuildInfo(cfg config.EngineConfig, engine stt.ModelInfo, version string) (protocol.ServerInfo, error) {
	stat, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return protocol.ServerInfo{}, fmt.Errorf("stat model: %w", err)
	}

	var threads *int
	if cfg.Threads > 0 {
		n := cfg.Threads
		threads = &n
	}

	return protocol.ServerInfo{
		Provider:  engine.Provider,
		ModelName: modelName(cfg.ModelPath),
		Version:   version,
		Attributes: protocol.ModelAttributes{
			FileSize:     stat.Size(),
			ModelType:    engine.ModelType,
			GPUAvailable: engine.GPUAvailable,
			GPUEnabled:   !cfg.CPUOnly && engine.GPUAvailable && engine.GPUEnabled,
		},
		Parameters: protocol.ServerParameters{
			Threads:     threads,
			CPUOnly:     cfg.CPUOnly,
			AudioFormat: protocol.AudioFormat,
		},
	}, nil
}

func modelName(path string) string {
	base := filepath.Base(path)
	if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
		return stem
	}
	return "unknown"
}

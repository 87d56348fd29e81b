package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// Environment file keys. A CI pipeline sources or parses these to assert
// artifact integrity without re-reading the full report.
const (
	envKeyPath      = "HOSTGUARD_REPORT_PATH"
	envKeyDigest    = "HOSTGUARD_REPORT_SHA256"
	envKeyFindings  = "HOSTGUARD_FINDINGS"
	envKeyRiskScore = "HOSTGUARD_RISK_SCORE"
)

// WriteEnvFile emits the key-value companion file after a successful
// WriteReport: the absolute report path, the SHA-256 digest of the written
// artifact, and the headline summary numbers.
//
// It fails when the report file does not exist, which includes the case of
// a report written to stdout with no output path configured.
func (w *Writer) WriteEnvFile(cfg *config.Config, rep *report.Report) error {
	if cfg.Output.EnvFile == "" {
		return NewOutputError("env file", fmt.Errorf("no env file path configured"))
	}
	if cfg.Output.File == "" {
		return NewOutputError(cfg.Output.EnvFile, fmt.Errorf("report was not written to a file"))
	}

	absPath, err := filepath.Abs(cfg.Output.File)
	if err != nil {
		return NewOutputError(cfg.Output.File, err)
	}
	digest, err := fileSHA256(absPath)
	if err != nil {
		return NewOutputError(absPath, err)
	}

	sum := rep.Summary()
	content := fmt.Sprintf("%s=%s\n%s=%s\n%s=%d\n%s=%d\n",
		envKeyPath, absPath,
		envKeyDigest, digest,
		envKeyFindings, sum.TotalFindings,
		envKeyRiskScore, sum.TotalRiskScore,
	)

	if err := os.WriteFile(cfg.Output.EnvFile, []byte(content), 0o644); err != nil {
		return NewOutputError(cfg.Output.EnvFile, err)
	}

	w.logger.Info().
		Str("env_file", cfg.Output.EnvFile).
		Str("sha256", digest).
		Msg("environment file written")
	return nil
}

// fileSHA256 returns the hex content digest of the file at path.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

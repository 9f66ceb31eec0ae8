// Package confio reads and writes the three on-disk xDS documents the
// proxy watches. Writes are verified by re-reading the file and comparing
// bytes (§6.4, §7 WriteConfigMismatch).
package confio

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kaiyote/envoycfgd/internal/apierr"
	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/entity/conf"
)

// ReadAll loads the three serialised documents off disk, for worker
// bootstrap.
func ReadAll(cfg *config.Config) (ldsJSON, cdsJSON, edsJSON []byte, err error) {
	ldsJSON, err = os.ReadFile(cfg.LDSPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("confio: reading lds file: %w", err)
	}
	cdsJSON, err = os.ReadFile(cfg.CDSPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("confio: reading cds file: %w", err)
	}
	edsJSON, err = os.ReadFile(cfg.EDSPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("confio: reading eds file: %w", err)
	}
	return ldsJSON, cdsJSON, edsJSON, nil
}

// WriteAll overwrites the three files in LDS → CDS → EDS order (§4.4),
// verifying each write by re-reading it back and byte-comparing. A
// mismatch returns apierr.ErrWriteConfigMismatch and the remaining files
// are still attempted — the proxy is expected to tolerate transient
// inconsistency between the three (§4.4).
func WriteAll(cfg *config.Config, c *conf.Config) error {
	var errs []error
	if err := writeVerified(cfg.LDSPath, c.Lds.Emit()); err != nil {
		errs = append(errs, err)
	}
	if err := writeVerified(cfg.CDSPath, c.Cds.Emit()); err != nil {
		errs = append(errs, err)
	}
	if err := writeVerified(cfg.EDSPath, c.Eds.Emit()); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", apierr.ErrWriteConfigMismatch, errs)
	}
	return nil
}

func writeVerified(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("re-reading %s: %w", path, err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("%s: re-read did not match what was written", path)
	}
	return nil
}

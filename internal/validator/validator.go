// Package validator implements the Validator (spec.md §4.8): the ordered
// CONNECT and CREATE/SELECT checks a responder runs before entering the
// data phase, each producing a specific diag.Code on failure.
package validator

import (
	"path/filepath"
	"strings"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
)

// Outcome reports whether a CONNECT or file operation passed validation,
// and if not, the diagnostic code and message to carry back to the peer.
type Outcome struct {
	OK      bool
	Code    diag.Code
	Message string
}

func ok() *Outcome { return &Outcome{OK: true, Code: diag.Success} }

func reject(code diag.Code, message string) *Outcome {
	return &Outcome{OK: false, Code: code, Message: message}
}

// Validator runs the spec.md §4.8 checks against configured partner and
// file stores.
type Validator struct {
	ServerID         string
	SupportedVersion byte
	Strict           bool // unknown partner/file is a hard reject, not an implicit accept

	Partners PartnerStore
	Files    FileStore
}

// New constructs a Validator over the given stores.
func New(serverID string, supportedVersion byte, strict bool, partners PartnerStore, files FileStore) *Validator {
	return &Validator{
		ServerID:         serverID,
		SupportedVersion: supportedVersion,
		Strict:           strict,
		Partners:         partners,
		Files:            files,
	}
}

// ValidateConnect runs the CONNECT-time checks in the exact order spec.md
// §4.8 lists them, short-circuiting at the first failure:
//
//  1. PI_04_SERVEUR matches our configured server id.
//  2. PI_06_VERSION <= our supported version.
//  3. Partner lookup by PI_03_DEMANDEUR (existence, enabled, password,
//     access direction).
func (v *Validator) ValidateConnect(f *fpdu.FPDU) *Outcome {
	if serveur, present := f.Param(fpdu.PI_04_SERVEUR); present {
		if v.ServerID != "" && !strings.EqualFold(serveur.StringValue(), v.ServerID) {
			return reject(diag.UnexpectedFPDU, "PI_04_SERVEUR does not match this server")
		}
	}

	version, _ := f.Param(fpdu.PI_06_VERSION)
	if len(version.Value) == 1 && version.Value[0] > v.SupportedVersion {
		return reject(diag.VersionNotSupp, "PI_06_VERSION exceeds supported protocol version")
	}

	demandeur, _ := f.Param(fpdu.PI_03_DEMANDEUR)
	partnerID := demandeur.StringValue()

	partner, found := v.Partners.Lookup(partnerID)
	if !found {
		if v.Strict {
			return reject(diag.UnexpectedFPDU, "unknown partner")
		}
		return ok()
	}
	if partner.Disabled {
		return reject(diag.PartnerAuth, "partner is disabled")
	}

	if partner.PasswordHash != "" {
		given := ""
		if p, has := f.Param(fpdu.PI_05_ACCESS_CONTROL); has {
			given = p.StringValue()
		}
		if !passwordMatches(partner.PasswordHash, given) {
			return reject(diag.PartnerAuth, "password mismatch")
		}
	}

	if access, has := f.Param(fpdu.PI_22_ACCESS_TYPE); has && len(access.Value) == 1 {
		if !partner.Access.Allows(access.Value[0]) {
			return reject(diag.PartnerAuth, "access type forbidden for this partner")
		}
	}

	return ok()
}

// ValidateFileOp runs the file-level checks spec.md §4.8 lists for CREATE
// and SELECT: file existence/enablement, direction, and the partner's
// glob allowlist.
func (v *Validator) ValidateFileOp(partnerID, virtualFileID string, accessType byte) *Outcome {
	file, found := v.Files.Lookup(virtualFileID)
	if !found {
		if v.Strict {
			return reject(diag.FileUnknown, "unknown virtual file")
		}
		return ok()
	}
	if file.Disabled {
		return reject(diag.FileUnknown, "virtual file is disabled")
	}
	if !file.Access.Allows(accessType) {
		return reject(diag.FileDirection, "access type forbidden for this virtual file")
	}

	partner, found := v.Partners.Lookup(partnerID)
	if found && len(partner.AllowedFiles) > 0 {
		allowed := false
		for _, pattern := range partner.AllowedFiles {
			if matched, _ := filepath.Match(pattern, virtualFileID); matched {
				allowed = true
				break
			}
		}
		if !allowed {
			return reject(diag.FileDirection, "virtual file not in partner's allowlist")
		}
	}

	return ok()
}

package workflow

import (
	"strings"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/custody"
	"sponsorrail/internal/ledger"
)

// Kind names a workflow.
type Kind string

const (
	KindKiosk      Kind = "kiosk"
	KindCredential Kind = "credential"
)

// Status summarises a finished run. A run that failed returns an error
// instead of a result.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
)

func statusFor(verified bool) Status {
	if verified {
		return StatusSuccess
	}
	return StatusPartialSuccess
}

// Result is the terminal output of a workflow run: *KioskResult or
// *CredentialResult. Results are never changed once returned.
type Result interface {
	Workflow() Kind
	Outcome() Status
	IsVerified() bool
}

type KioskResult struct {
	KioskID         string        `json:"kioskId"`
	KioskOwnerCapID string        `json:"kioskOwnerCapId"`
	Digest          string        `json:"digest"`
	MetadataDigest  string        `json:"metadataDigest,omitempty"`
	Sponsor         string        `json:"sponsorAddress"`
	User            string        `json:"userAddress"`
	Verified        bool          `json:"verified"`
	Ownership       custody.Claim `json:"ownership"`
	Status          Status        `json:"status"`
	Notes           []string      `json:"notes"`
}

func (r *KioskResult) Workflow() Kind { return KindKiosk }
func (r *KioskResult) Outcome() Status { return r.Status }
func (r *KioskResult) IsVerified() bool { return r.Verified }

type CredentialResult struct {
	TokenID        string        `json:"tokenId"`
	MintDigest     string        `json:"mintDigest"`
	TransferDigest string        `json:"transferDigest"`
	Sponsor        string        `json:"sponsorAddress"`
	User           string        `json:"userAddress"`
	Verified       bool          `json:"verified"`
	Ownership      custody.Claim `json:"ownership"`
	Status         Status        `json:"status"`
	Notes          []string      `json:"notes"`
}

func (r *CredentialResult) Workflow() Kind { return KindCredential }
func (r *CredentialResult) Outcome() Status { return r.Status }
func (r *CredentialResult) IsVerified() bool { return r.Verified }

type KioskRequest struct {
	UserAddress string `json:"userAddress"`
}

// CredentialRequest carries the descriptive fields written into the minted
// token.
type CredentialRequest struct {
	UserAddress      string   `json:"userAddress"`
	PackageID        string   `json:"packageId"`
	Name             string   `json:"name"`
	Specialization   string   `json:"specialization"`
	Credentials      string   `json:"credentials"`
	YearsExperience  uint64   `json:"yearsExperience"`
	Bio              string   `json:"bio"`
	SessionTypes     []string `json:"sessionTypes"`
	Languages        []string `json:"languages"`
	Rating           uint64   `json:"rating"`
	TotalSessions    uint64   `json:"totalSessions"`
	ProfileImageURL  string   `json:"profileImageUrl"`
	CertificationURL string   `json:"certificationUrl"`
}

func validateAddress(op, field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperr.New(apperr.KindValidation, op, "%s is required", field)
	}
	addr, err := ledger.NormalizeAddress(value)
	if err != nil {
		return "", apperr.New(apperr.KindValidation, op, "%s: %v", field, err)
	}
	return addr, nil
}

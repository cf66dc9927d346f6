package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
)

func connectFPDU(demandeur, serveur, password string, version byte, accessType byte) *fpdu.FPDU {
	params := []fpdu.Param{
		fpdu.Str(fpdu.PI_03_DEMANDEUR, demandeur),
		fpdu.Str(fpdu.PI_04_SERVEUR, serveur),
	}
	if password != "" {
		params = append(params, fpdu.Str(fpdu.PI_05_ACCESS_CONTROL, password))
	}
	params = append(params,
		fpdu.Uint(fpdu.PI_06_VERSION, 1, uint32(version)),
		fpdu.Uint(fpdu.PI_22_ACCESS_TYPE, 1, uint32(accessType)),
	)
	return fpdu.New(fpdu.CONNECT, 1, 0, params...)
}

func TestValidateConnectServerIDMismatch(t *testing.T) {
	v := New("SERVER1", 2, true, MapPartnerStore{}, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "OTHERSERVER", "", 2, 0))
	assert.False(t, out.OK)
	assert.Equal(t, diag.UnexpectedFPDU, out.Code)
}

func TestValidateConnectVersionTooHigh(t *testing.T) {
	v := New("SERVER1", 2, true, MapPartnerStore{}, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "SERVER1", "", 3, 0))
	assert.False(t, out.OK)
	assert.Equal(t, diag.VersionNotSupp, out.Code)
}

func TestValidateConnectUnknownPartnerStrict(t *testing.T) {
	v := New("SERVER1", 2, true, MapPartnerStore{}, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("GHOST", "SERVER1", "", 2, 0))
	assert.False(t, out.OK)
	assert.Equal(t, diag.UnexpectedFPDU, out.Code)
}

func TestValidateConnectUnknownPartnerLax(t *testing.T) {
	v := New("SERVER1", 2, false, MapPartnerStore{}, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("GHOST", "SERVER1", "", 2, 0))
	assert.True(t, out.OK)
}

func TestValidateConnectDisabledPartner(t *testing.T) {
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", Disabled: true}}
	v := New("SERVER1", 2, true, partners, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "SERVER1", "", 2, 0))
	assert.False(t, out.OK)
	assert.Equal(t, diag.PartnerAuth, out.Code)
}

func TestValidateConnectPlaintextPasswordMismatch(t *testing.T) {
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", PasswordHash: "correct-horse"}}
	v := New("SERVER1", 2, true, partners, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "SERVER1", "wrong", 2, 0))
	assert.False(t, out.OK)
	assert.Equal(t, diag.PartnerAuth, out.Code)
}

func TestValidateConnectBcryptPasswordMatch(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	assert.NoError(t, err)
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", PasswordHash: string(hash)}}
	v := New("SERVER1", 2, true, partners, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "SERVER1", "s3cret", 2, 0))
	assert.True(t, out.OK)
}

func TestValidateConnectAccessDirectionForbidden(t *testing.T) {
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", Access: AccessReadOnly}}
	v := New("SERVER1", 2, true, partners, MapFileStore{})
	out := v.ValidateConnect(connectFPDU("PARTNER1", "SERVER1", "", 2, 0)) // requests write
	assert.False(t, out.OK)
	assert.Equal(t, diag.PartnerAuth, out.Code)
}

func TestValidateFileOpUnknownFileStrict(t *testing.T) {
	v := New("SERVER1", 2, true, MapPartnerStore{}, MapFileStore{})
	out := v.ValidateFileOp("PARTNER1", "VF.GHOST", 0)
	assert.False(t, out.OK)
	assert.Equal(t, diag.FileUnknown, out.Code)
}

func TestValidateFileOpDirectionMismatch(t *testing.T) {
	files := MapFileStore{"VF.A": {ID: "VF.A", Access: AccessReadOnly}}
	v := New("SERVER1", 2, true, MapPartnerStore{}, files)
	out := v.ValidateFileOp("PARTNER1", "VF.A", 0) // requests write
	assert.False(t, out.OK)
	assert.Equal(t, diag.FileDirection, out.Code)
}

func TestValidateFileOpAllowlistGlob(t *testing.T) {
	files := MapFileStore{"VF.REPORTS.Q1": {ID: "VF.REPORTS.Q1"}}
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", AllowedFiles: []string{"VF.REPORTS.*"}}}
	v := New("SERVER1", 2, true, partners, files)
	out := v.ValidateFileOp("PARTNER1", "VF.REPORTS.Q1", 0)
	assert.True(t, out.OK)
}

func TestValidateFileOpAllowlistRejectsNonMatch(t *testing.T) {
	files := MapFileStore{"VF.SECRET": {ID: "VF.SECRET"}}
	partners := MapPartnerStore{"PARTNER1": {ID: "PARTNER1", AllowedFiles: []string{"VF.REPORTS.*"}}}
	v := New("SERVER1", 2, true, partners, files)
	out := v.ValidateFileOp("PARTNER1", "VF.SECRET", 0)
	assert.False(t, out.OK)
	assert.Equal(t, diag.FileDirection, out.Code)
}

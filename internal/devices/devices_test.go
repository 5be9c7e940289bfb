package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const axisTemplate = `{
  "template": {"id": "acme-axis", "vendor": "Acme", "model": "A1"},
  "identity": {"vendor_id": "0x00000abc", "product_code": 42},
  "dc": {"assign_activate": "0x0300"},
  "sync_managers": [
    {"index": 2, "direction": "output", "watchdog": "enable", "pdos": [
      {"index": "0x1600", "entries": [
        {"index": "0x6040", "subindex": 0, "bits": 16, "name": "controlword"},
        {"index": "0x0000", "subindex": 0, "bits": 8},
        {"index": "0x6060", "subindex": 0, "bits": 8}
      ]}
    ]},
    {"index": 3, "direction": "input", "pdos": [
      {"index": "0x1a00", "entries": [
        {"index": "0x6041", "subindex": 0, "bits": 16, "name": "statusword"}
      ]}
    ]}
  ]
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEROBTemplateIsValid(t *testing.T) {
	tmpl := EROBTemplate()
	require.NoError(t, tmpl.Syncs.Validate())

	entries := tmpl.Syncs.Entries()
	require.Len(t, entries, 8)
	assert.Equal(t, Controlword, entries[0].Index)
	assert.Equal(t, types.DirectionOutput, entries[0].Direction)
	assert.Equal(t, TorqueActual, entries[7].Index)
	assert.Equal(t, types.DirectionInput, entries[7].Direction)
	assert.Equal(t, uint16(0x0300), tmpl.DC.AssignActivate)
	assert.Equal(t, "position_actual", tmpl.Names()[uint32(PositionActual)<<8])
}

func TestLoaderParsesHexTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acme", "a1.json"), axisTemplate)

	loader, err := NewTemplateLoader([]string{dir})
	require.NoError(t, err)

	tmpl, err := loader.Load("acme/a1")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceIdentity{VendorID: 0xabc, ProductCode: 42}, tmpl.Identity)
	require.Len(t, tmpl.Syncs, 2)
	assert.Equal(t, types.WatchdogEnable, tmpl.Syncs[0].Watchdog)
	assert.Equal(t, uint16(0x1a00), tmpl.Syncs[1].Pdos[0].Index)
	// padding is kept in the mapping but not listed as an entry
	assert.Len(t, tmpl.Syncs[0].Pdos[0].Entries, 3)
	assert.Len(t, tmpl.Syncs.Entries(), 3)

	// cached
	again, err := loader.Load("acme/a1")
	require.NoError(t, err)
	assert.Same(t, tmpl, again)
}

func TestLoaderRejectsInvalidTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.json"), `{"template": {"id": "bad"}}`)
	writeFile(t, filepath.Join(dir, "wrongdir.json"), `{
	  "template": {"id": "wrongdir", "vendor": "x", "model": "y"},
	  "identity": {"vendor_id": 1, "product_code": 2},
	  "sync_managers": [{"index": 2, "direction": "output", "pdos": [
	    {"index": "0x1a00", "entries": [{"index": "0x6040", "subindex": 0, "bits": 16}]}
	  ]}]
	}`)

	loader, err := NewTemplateLoader([]string{dir})
	require.NoError(t, err)

	_, err = loader.Load("bad")
	assert.ErrorContains(t, err, "validation failed")

	_, err = loader.Load("wrongdir")
	assert.ErrorContains(t, err, "not a receive pdo")

	_, err = loader.Load("missing")
	assert.ErrorContains(t, err, "template not found")
}

func TestRegistryVendors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acme", "index.yaml"), `
vendor: Acme
website: https://acme.example
templates:
  servo:
    - id: acme-axis
      file: a1.json
      name: A1
      tested: true
`)
	writeFile(t, filepath.Join(dir, "broken", "index.yaml"), "templates: [")

	reg, err := NewRegistry([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	vendors := reg.Vendors()
	require.Len(t, vendors, 1)
	assert.Equal(t, "Acme", vendors[0].Vendor)
	assert.Equal(t, 1, vendors[0].Count())
	assert.True(t, vendors[0].Templates["servo"][0].Tested)

	require.Len(t, reg.Builtin(), 1)
	assert.Equal(t, EROBTemplateID, reg.Builtin()[0].ID)
}

func TestComposeDefaultsToEROB(t *testing.T) {
	reg, err := NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)
	c := NewComposer(reg, zap.NewNop())

	specs, err := c.Compose([]SlaveBinding{
		{Name: "axis0", Position: 0},
		{Name: "axis1", Position: 1, VendorID: EROBIdentity.VendorID, ProductCode: EROBIdentity.ProductCode},
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, EROBIdentity, specs[0].Identity)
	assert.Equal(t, types.BusAddress{Position: 1}, specs[1].Address)
	assert.Equal(t, EROBTemplateID, specs[1].Template)
	assert.True(t, specs[1].DC.Enabled())
}

func TestComposeReportsEveryProblem(t *testing.T) {
	reg, err := NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)
	c := NewComposer(reg, zap.NewNop())

	_, err = c.Compose([]SlaveBinding{
		{Name: "a", Position: 0},
		{Name: "a", Position: 1},
		{Name: "b", Position: 0},
		{Name: "c", Position: 2, Template: "nope"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, `slave name "a" used twice`)
	assert.ErrorContains(t, err, "already used by a")
	assert.ErrorContains(t, err, "template not found")

	_, err = c.Compose(nil)
	assert.Error(t, err)
}

func TestValidatorReportsViolationLocation(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateTemplate([]byte(`{
	  "template": {"id": "wide", "vendor": "x", "model": "y"},
	  "identity": {"vendor_id": 1, "product_code": 2},
	  "sync_managers": [{"index": 2, "direction": "output", "pdos": [
	    {"index": "0x1600", "entries": [{"index": "0x6040", "subindex": 0, "bits": 65}]}
	  ]}]
	}`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "schema validation failed")
	assert.ErrorContains(t, err, "/sync_managers/0/pdos/0/entries/0/bits")

	assert.ErrorContains(t, v.ValidateTemplate([]byte(`{"template":`)), "invalid JSON")
}

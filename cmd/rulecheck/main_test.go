package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"casefile-backend/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesDir = "../../config"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--dir", rulesDir))
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "rule files are valid")
}

func TestValidateReportsMissingFiles(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--dir", t.TempDir()})
	err := cmd.Execute()
	assert.ErrorIs(t, err, rules.ErrConfigMissing)
}

func TestValidateReportsBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{rules.EvidenceChainsFile, rules.CardSlotTemplatesFile, rules.BusinessConfigFile} {
		data, err := os.ReadFile(filepath.Join(rulesDir, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, rules.EvidenceTypesFile), []byte("evidence_types: [oops"), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--dir", dir})
	assert.ErrorIs(t, cmd.Execute(), rules.ErrConfigInvalid)
}

func TestChainsForPersonToPerson(t *testing.T) {
	out, err := run(t, "chains", "--cause", "debt", "--creditor", "person", "--debtor", "person")
	require.NoError(t, err)
	assert.Contains(t, out, "debt / person / person")
	assert.Contains(t, out, "card slot templates")
	assert.Contains(t, out, "debt_iou_person_person")
}

func TestGuide(t *testing.T) {
	out, err := run(t, "guide")
	require.NoError(t, err)
	assert.Contains(t, out, "借条")
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingDegreeValidate(t *testing.T) {
	draft := DegreeDraft{Name: "  Computer Science ", TotalYears: 4, SemestersPerYear: 2}

	tests := []struct {
		name    string
		pending PendingDegree
		wantErr bool
	}{
		{name: "existing", pending: NewExistingPendingDegree("ref", "deg-1")},
		{name: "create", pending: NewCreatePendingDegree("ref", draft, "")},
		{name: "create from source", pending: NewCreatePendingDegree("ref", draft, "deg-1")},
		{name: "missing ref", pending: NewExistingPendingDegree("", "deg-1"), wantErr: true},
		{name: "existing without id", pending: PendingDegree{Ref: "ref", Kind: PendingDegreeExisting}, wantErr: true},
		{name: "existing with draft", pending: PendingDegree{Ref: "ref", Kind: PendingDegreeExisting, DegreeID: "d", Draft: &draft}, wantErr: true},
		{name: "create with id", pending: PendingDegree{Ref: "ref", Kind: PendingDegreeCreate, DegreeID: "d", Draft: &draft}, wantErr: true},
		{name: "create empty name", pending: NewCreatePendingDegree("ref", DegreeDraft{Name: "  ", TotalYears: 3, SemestersPerYear: 2}, ""), wantErr: true},
		{name: "unknown kind", pending: PendingDegree{Ref: "ref", Kind: "OTHER"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pending.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewCreatePendingDegreeTrimsName(t *testing.T) {
	p := NewCreatePendingDegree("ref", DegreeDraft{Name: " Law ", TotalYears: 4, SemestersPerYear: 2}, "")
	assert.Equal(t, "Law", p.Draft.Name)
	assert.Equal(t, 2, p.SemestersPerYear())
	assert.Equal(t, 0, NewExistingPendingDegree("ref", "d").SemestersPerYear())
}

func TestDegreeVisibleTo(t *testing.T) {
	owner := "u1"
	system := &Degree{ID: "d1"}
	custom := &Degree{ID: "d2", IsCustom: true, CreatedByUserID: &owner}

	assert.True(t, system.VisibleTo("anyone"))
	assert.True(t, custom.VisibleTo("u1"))
	assert.False(t, custom.VisibleTo("u2"))
	assert.False(t, (*Degree)(nil).VisibleTo("u1"))
}

package seed

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

type degreeStoreFake struct {
	byName    map[string]*models.Degree
	templates []*models.DegreeSubjectTemplate
}

func (f *degreeStoreFake) FindSystemByName(ctx context.Context, name string) (*models.Degree, error) {
	if d, ok := f.byName[name]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (f *degreeStoreFake) Create(ctx context.Context, degree *models.Degree) error {
	degree.ID = fmt.Sprintf("deg-%d", len(f.byName)+1)
	f.byName[degree.Name] = degree
	return nil
}

func (f *degreeStoreFake) CreateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error {
	f.templates = append(f.templates, tpl)
	return nil
}

type userStoreFake struct {
	users []*models.User
}

func (f *userStoreFake) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *userStoreFake) Create(ctx context.Context, user *models.User) error {
	f.users = append(f.users, user)
	return nil
}

func TestParseDefaultsAndValidation(t *testing.T) {
	cat, err := Parse(strings.NewReader(`
degrees:
  - name: " Law "
    total_years: 4
  - name: Medicine
    total_years: 5
    semesters_per_year: 3
    templates:
      - subject_name: Anatomy
        credits: 4
        year: 1
        semester: 3
`))
	require.NoError(t, err)
	require.Len(t, cat.Degrees, 2)
	assert.Equal(t, "Law", cat.Degrees[0].Name)
	assert.Equal(t, 2, cat.Degrees[0].SemestersPerYear)
	assert.Len(t, cat.Degrees[1].Templates, 1)

	invalid := []string{
		"degrees:\n  - name: ''\n    total_years: 3\n",
		"degrees:\n  - name: A\n    total_years: 0\n",
		"degrees:\n  - name: A\n    total_years: 3\n  - name: A\n    total_years: 4\n",
		"degrees:\n  - name: A\n    total_years: 3\n    semesters_per_year: 5\n",
		"degrees:\n  - name: A\n    total_years: 1\n    templates:\n      - subject_name: X\n        credits: 3\n        year: 2\n        semester: 1\n",
		"degrees:\n  - name: A\n    total_years: 1\n    templates:\n      - subject_name: X\n        credits: 2.25\n        year: 1\n        semester: 1\n",
		"degrees: [",
	}
	for _, doc := range invalid {
		_, err := Parse(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

func TestBundledCatalogue(t *testing.T) {
	cat, err := LoadFile("../../seeds/degrees.yaml")
	require.NoError(t, err)
	require.Len(t, cat.Degrees, 9)
	assert.Equal(t, "Computer Science", cat.Degrees[0].Name)
	assert.Equal(t, 5, cat.Degrees[5].TotalYears)

	_, err = LoadFile(os.DevNull + "/missing.yaml")
	assert.Error(t, err)
}

func TestSeederRunIsIdempotent(t *testing.T) {
	degrees := &degreeStoreFake{byName: map[string]*models.Degree{"Law": {ID: "existing", Name: "Law"}}}
	users := &userStoreFake{}
	seeder := NewSeeder(degrees, users, nil)
	cat := &Catalogue{Degrees: []DegreeEntry{
		{Name: "Law", TotalYears: 4, SemestersPerYear: 2},
		{Name: "Medicine", TotalYears: 5, SemestersPerYear: 2, Templates: []TemplateEntry{{SubjectName: "Anatomy", Credits: 4, Year: 1, Semester: 1}}},
	}}
	admin := SuperAdmin{Email: "Root@Example.com", Password: "changeme"}

	res, err := seeder.Run(context.Background(), cat, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DegreesCreated)
	assert.Equal(t, 1, res.DegreesSkipped)
	assert.True(t, res.AdminCreated)
	require.Len(t, degrees.templates, 1)
	assert.Equal(t, degrees.byName["Medicine"].ID, degrees.templates[0].DegreeID)

	require.Len(t, users.users, 1)
	root := users.users[0]
	assert.Equal(t, "root@example.com", root.Email)
	assert.Equal(t, "superadmin", root.Username)
	assert.Equal(t, models.RoleSuperAdmin, root.Role)
	assert.True(t, root.IsVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(root.PasswordHash), []byte("changeme")))

	res, err = seeder.Run(context.Background(), cat, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DegreesCreated)
	assert.False(t, res.AdminCreated)
	assert.Len(t, users.users, 1)
}

func TestSeederRejectsWeakAdminPassword(t *testing.T) {
	seeder := NewSeeder(&degreeStoreFake{byName: map[string]*models.Degree{}}, &userStoreFake{}, nil)
	_, err := seeder.Run(context.Background(), &Catalogue{}, SuperAdmin{Email: "a@b.c", Password: "123"})
	assert.Error(t, err)
}

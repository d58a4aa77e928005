package store

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"My Cool Space", "my-cool-space"},
		{"  spaces    everywhere  ", "spaces-everywhere"},
		{"Café & Friends!!", "caf-friends"},
		{"---", "space"},
		{"", "space"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case_123", "upper-case-123"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.name); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAvailableSlug(t *testing.T) {
	mock := newMock(t)
	s := New(nil)

	// "my-space" is taken, "my-space-2" is free.
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("my-space", "").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("my-space-2", "").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := setupMockContext(mock)
	slug, err := s.AvailableSlug(ctx, "My Space", "")
	if err != nil {
		t.Fatalf("AvailableSlug: %v", err)
	}
	if slug != "my-space-2" {
		t.Errorf("slug = %q, want %q", slug, "my-space-2")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAvailableSlugFirstTry(t *testing.T) {
	mock := newMock(t)
	s := New(nil)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fresh", "s9").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := setupMockContext(mock)
	slug, err := s.AvailableSlug(ctx, "Fresh", "s9")
	if err != nil {
		t.Fatalf("AvailableSlug: %v", err)
	}
	if slug != "fresh" {
		t.Errorf("slug = %q, want %q", slug, "fresh")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

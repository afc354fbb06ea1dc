package db

import (
	"context"
	"testing"
)

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenPostgres_InvalidDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpenMongo_RequiresURI(t *testing.T) {
	if _, err := OpenMongo(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty URI")
	}
}

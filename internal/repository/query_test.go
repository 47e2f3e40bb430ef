package repository

import (
	"testing"
)

func TestSearchConditionByDialect(t *testing.T) {
	condition, args := searchCondition("sqlite", []string{"utm_campaign", " ", "landing_url"}, " spring ")
	if condition != `(utm_campaign LIKE ? ESCAPE '\' OR landing_url LIKE ? ESCAPE '\')` {
		t.Fatalf("unexpected sqlite condition: %s", condition)
	}
	if len(args) != 2 || args[0] != "%spring%" {
		t.Fatalf("unexpected args: %v", args)
	}

	condition, _ = searchCondition("postgres", []string{"utm_source"}, "news")
	if condition != `(utm_source ILIKE ? ESCAPE '\')` {
		t.Fatalf("unexpected postgres condition: %s", condition)
	}
}

func TestSearchConditionEscapesWildcards(t *testing.T) {
	_, args := searchCondition("sqlite", []string{"utm_campaign"}, `spring_50%`)
	if len(args) != 1 || args[0] != `%spring\_50\%%` {
		t.Fatalf("wildcards should be escaped, got %v", args)
	}
}

func TestSearchConditionEmptyTerm(t *testing.T) {
	condition, args := searchCondition("sqlite", []string{"utm_campaign"}, "  ")
	if condition != "" || args != nil {
		t.Fatalf("empty term should produce no condition, got %q %v", condition, args)
	}
}

func TestDBDialectNameDefaultsToSQLite(t *testing.T) {
	if got := dbDialectName(nil); got != "sqlite" {
		t.Fatalf("nil db dialect want sqlite got %s", got)
	}
}

package originmap

import "testing"

func TestMap_SetAndLookup(t *testing.T) {
	m := New()
	m.Set("cdn.example.com", Origin{Scheme: "https", Authority: "origin.example.com:443"})

	origin, ok := m.Lookup("cdn.example.com")
	if !ok {
		t.Fatal("expected origin to be found")
	}
	if origin.Scheme != "https" || origin.Authority != "origin.example.com:443" {
		t.Errorf("got %+v", origin)
	}
}

func TestMap_LookupMissing(t *testing.T) {
	m := New()
	if _, ok := m.Lookup("unknown.example.com"); ok {
		t.Error("expected no origin for unregistered host")
	}
}

func TestMap_Count(t *testing.T) {
	m := New()
	if m.Count() != 0 {
		t.Errorf("Count on empty map = %d, want 0", m.Count())
	}
	m.Set("a.example.com", Origin{Scheme: "https", Authority: "origin-a:443"})
	m.Set("b.example.com", Origin{Scheme: "https", Authority: "origin-b:443"})
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestMap_Set_Overwrites(t *testing.T) {
	m := New()
	m.Set("cdn.example.com", Origin{Scheme: "https", Authority: "origin-1:443"})
	m.Set("cdn.example.com", Origin{Scheme: "http", Authority: "origin-2:80"})

	origin, _ := m.Lookup("cdn.example.com")
	if origin.Authority != "origin-2:80" {
		t.Errorf("Set did not overwrite: got %+v", origin)
	}
}

func TestMap_ResolveURL(t *testing.T) {
	m := New()
	m.Set("cdn.example.com", Origin{Scheme: "https", Authority: "origin.example.com:443"})

	u, err := m.ResolveURL("cdn.example.com", "/images/a.png?w=200")
	if err != nil {
		t.Fatalf("ResolveURL failed: %v", err)
	}
	if got := u.String(); got != "https://origin.example.com:443/images/a.png?w=200" {
		t.Errorf("ResolveURL = %q", got)
	}
}

func TestMap_ResolveURL_UnknownHost(t *testing.T) {
	m := New()
	if _, err := m.ResolveURL("unknown.example.com", "/x"); err == nil {
		t.Error("expected error for unregistered host")
	}
}

package domain

import (
	"testing"
)

// FuzzParseTenantID checks that parsing never panics on arbitrary input and
// never returns both a usable ID and an error.
func FuzzParseTenantID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE tenants;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		tenantID, err := ParseTenantID(input)
		if err != nil {
			if !tenantID.IsNil() {
				t.Errorf("error result must carry the zero ID, got %s", tenantID)
			}
			return
		}
		if tenantID.IsNil() {
			t.Error("nil ID returned without an error")
		}
		if tenantID.String() == "" {
			t.Error("valid ID must have a canonical string form")
		}
	})
}

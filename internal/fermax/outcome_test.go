package fermax

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Classification
	}{
		{"spanish success sentence", 200, "La puerta ha sido abierta correctamente", Success},
		{"spanish blocked door", 200, "Puerta bloqueada", Failure},
		{"bare ok", 200, "OK", Success},
		{"ko with auth status", 401, "KO", Failure},
		{"no matching keyword", 200, "request accepted", Ambiguous},
		{"english opened", 200, "Door opened", Success},
		{"structured success", 200, `{"status":"success"}`, Success},
		{"spanish closed", 200, "La puerta sigue cerrada", Failure},
		{"english denied", 200, "Access denied", Failure},
		{"server error wins over body", 500, "OK", Failure},
		{"bad gateway", 502, "", Failure},
		{"soft failure code with empty body", 409, "", Ambiguous},
		{"empty success body", 204, "", Ambiguous},
		{"case insensitive", 200, "PUERTA ABIERTA", Success},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.status, tc.body); got != tc.want {
				t.Fatalf("Classify(%d, %q) = %s, want %s", tc.status, tc.body, got, tc.want)
			}
		})
	}
}

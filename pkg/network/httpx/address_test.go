package httpx

import "testing"

func TestReachable(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{bind: "", want: "localhost"},
		{bind: ":", want: "localhost"},
		{bind: "", port: 393, want: "localhost:393"},
		{bind: ":0", port: 8081, want: "localhost:8081"},
		{bind: "0.0.0.0:9000", port: 9000, want: "localhost:9000"},
		{bind: "127.0.0.1:0", port: 4000, want: "127.0.0.1:4000"},
		{bind: "host:8080", port: 8081, want: "host:8081"},
		{bind: "[::]:7000", port: 7000, want: "localhost:7000"},
		{bind: "[::1]:7000", port: 7001, want: "[::1]:7001"},
	}

	for _, test := range tests {
		if got := reachable(test.bind, test.port); got != test.want {
			t.Errorf("reachable(%q, %v) = %v, want %v", test.bind, test.port, got, test.want)
		}
	}
}

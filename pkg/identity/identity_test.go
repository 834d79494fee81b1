package identity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Registry,Assignment,Organization Name,Organization Address
MA-L,002272,American Micro-Fuel Device Corp.,2181 Buchanan Loop Ferndale WA US 98248
MA-L,F0D5BF,"Intel Corporate","Lot 8, Jalan Hi-Tech 2/3  Kulim Kedah MY 09000"
MA-M,F0D5BF1,Ignored Block Inc.,Somewhere
`

const sampleOUIText = `OUI/MA-L                                                    Organization
company_id                                                  Organization
                                                            Address

00-22-72   (hex)		American Micro-Fuel Device Corp.
002272     (base 16)		American Micro-Fuel Device Corp.
				2181 Buchanan Loop
`

const sampleManuf = `# Wireshark manuf
00:00:0C	Cisco	Cisco Systems, Inc
00:00:01	Xerox
00:1B:C5:00:00:00/36	Convergi	Converging Systems Inc.
`

func TestParseVendorDB(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect map[string]string
	}{
		{
			name:  "ieee csv",
			input: sampleCSV,
			expect: map[string]string{
				"002272": "American Micro-Fuel Device Corp.",
				"F0D5BF": "Intel Corporate",
			},
		},
		{
			name:  "ieee txt",
			input: sampleOUIText,
			expect: map[string]string{
				"002272": "American Micro-Fuel Device Corp.",
			},
		},
		{
			name:  "wireshark manuf",
			input: sampleManuf,
			expect: map[string]string{
				"00000C": "Cisco Systems, Inc",
				"000001": "Xerox",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVendorDB(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}

	_, err := ParseVendorDB(strings.NewReader("nothing useful here\n"))
	assert.ErrorIs(t, err, ErrEmptyVendorDB)
}

func TestOUIKey(t *testing.T) {
	tests := map[string]string{
		"aa:bb:cc:dd:ee:ff": "AABBCC",
		"AA-BB-CC-DD-EE-FF": "AABBCC",
		"aabb.ccdd.eeff":    "AABBCC",
		"002272":            "002272",
		"00:22":             "",
		"(incomplete)":      "",
		"":                  "",
	}
	for input, want := range tests {
		assert.Equal(t, want, ouiKey(input), input)
	}
}

func TestVendorDBLazyLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oui.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	db := NewVendorDB(path)
	assert.Equal(t, "Intel Corporate", db.Lookup("f0:d5:bf:12:34:56"))
	assert.Equal(t, "Intel Corporate", db.Lookup("F0-D5-BF-12-34-56"))
	assert.Equal(t, "", db.Lookup("02:11:22:33:44:55"))
	assert.Equal(t, 2, db.Len())

	missing := NewVendorDB(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Equal(t, "", missing.Lookup("f0:d5:bf:12:34:56"))
	assert.Equal(t, 0, missing.Len())
}

func fakeRunner(outputs map[string]string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) (string, error) {
		out, ok := outputs[name]
		if !ok {
			return "", errors.New("executable file not found in $PATH")
		}
		return out, nil
	}
}

func TestResolveExtraWindows(t *testing.T) {
	nbtstat := `
Wi-Fi:
Node IpAddress: [192.168.1.100] Scope Id: []

           NetBIOS Remote Machine Name Table

       Name               Type         Status
    ---------------------------------------------
    WORKGROUP      <00>  GROUP       Registered
    DESKTOP-7QX2   <00>  UNIQUE      Registered
    DESKTOP-7QX2   <20>  UNIQUE      Registered
`
	resolver := New(&Options{
		Runner:    fakeRunner(map[string]string{"nbtstat": nbtstat}),
		IsWindows: func() bool { return true },
	}, nil)
	assert.Equal(t, "DESKTOP-7QX2", resolver.ResolveExtra(context.Background(), "192.168.1.20"))

	generic := New(&Options{
		Runner:    fakeRunner(map[string]string{"nbtstat": "    MSHOME   <00>  GROUP  Registered\n"}),
		IsWindows: func() bool { return true },
	}, nil)
	assert.Equal(t, "", generic.ResolveExtra(context.Background(), "192.168.1.20"))
}

func TestResolveExtraUnix(t *testing.T) {
	tests := []struct {
		name    string
		outputs map[string]string
		want    string
	}{
		{
			name:    "getent",
			outputs: map[string]string{"getent": "192.168.1.10   nas.lan\n"},
			want:    "nas.lan",
		},
		{
			name: "avahi after empty getent",
			outputs: map[string]string{
				"getent":        "",
				"avahi-resolve": "192.168.1.10\tprinter.local\n",
			},
			want: "printer.local",
		},
		{
			name:    "echoed address is not a name",
			outputs: map[string]string{"getent": "192.168.1.10\n"},
			want:    "",
		},
		{
			name:    "nothing installed",
			outputs: map[string]string{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := New(&Options{
				Runner:      fakeRunner(tt.outputs),
				IsWindows:   func() bool { return false },
				DisableMDNS: true,
			}, nil)
			assert.Equal(t, tt.want, resolver.ResolveExtra(context.Background(), "192.168.1.10"))
		})
	}
}

func TestResolveExtraMDNS(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			reply := new(dns.Msg)
			reply.SetReply(req)
			if len(req.Question) == 1 && req.Question[0].Qtype == dns.TypePTR {
				rr, err := dns.NewRR(req.Question[0].Name + " 120 IN PTR living-room-tv.local.")
				if err == nil {
					reply.Answer = append(reply.Answer, rr)
				}
			}
			_ = w.WriteMsg(reply)
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started
	defer func() {
		_ = server.Shutdown()
	}()

	resolver := New(&Options{
		Timeout:   2 * time.Second,
		MDNSPort:  pc.LocalAddr().(*net.UDPAddr).Port,
		Runner:    fakeRunner(nil),
		IsWindows: func() bool { return false },
	}, nil)
	assert.Equal(t, "living-room-tv.local", resolver.ResolveExtra(context.Background(), "127.0.0.1"))
}

func TestReverse(t *testing.T) {
	resolver := New(&Options{
		LookupAddr: func(ctx context.Context, addr string) ([]string, error) {
			if addr == "192.168.1.1" {
				return []string{"router.lan."}, nil
			}
			return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
		},
	}, nil)

	assert.Equal(t, "router.lan", resolver.Reverse(context.Background(), "192.168.1.1"))
	assert.Equal(t, "", resolver.Reverse(context.Background(), "192.168.1.2"))
}

func TestResolverVendor(t *testing.T) {
	resolver := New(nil, NewVendorDBFromMap(map[string]string{"00:00:0C": "Cisco Systems, Inc"}))
	assert.Equal(t, "Cisco Systems, Inc", resolver.Vendor("00:00:0c:aa:bb:cc"))
	assert.Equal(t, "", resolver.Vendor("02:00:0c:aa:bb:cc"))

	empty := New(nil, nil)
	assert.Equal(t, "", empty.Vendor("00:00:0c:aa:bb:cc"))
}

func TestUpdateVendorDB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oui.csv":
			_, _ = w.Write([]byte(sampleCSV))
		case "/broken.csv":
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "db", "oui.csv")

	count, err := UpdateVendorDB(context.Background(), server.URL+"/oui.csv", path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data))

	_, err = UpdateVendorDB(context.Background(), server.URL+"/broken.csv", path)
	require.Error(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data), "a failed update must keep the previous database")
}

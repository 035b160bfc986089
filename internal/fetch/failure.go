package fetch

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a request to the controller failed.
type Kind int

const (
	KindNetwork Kind = iota + 1 // no response at all
	KindHTTP                    // non-2xx status
	KindTunnel                  // proxy answered but could not reach the controller
	KindDecode                  // 2xx body that is not JSON
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindTunnel:
		return "tunnel"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Failure is the error returned by every Client call.
type Failure struct {
	Kind   Kind
	Status int    // HTTP status, 0 when unknown or no response was received
	Hint   string // remediation text for tunnel failures
	Err    error
}

func (f *Failure) Error() string {
	var sb strings.Builder
	sb.WriteString("fetch: ")
	sb.WriteString(f.Kind.String())
	if f.Status != 0 {
		fmt.Fprintf(&sb, " (status %d)", f.Status)
	}
	if f.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, or 0 if err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// IsTunnel reports whether err is a tunnel failure.
func IsTunnel(err error) bool {
	return KindOf(err) == KindTunnel
}

// HintOf returns the remediation hint carried by err, if any.
func HintOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Hint
	}
	return ""
}

const htmlTunnelHint = "The tunnel answered with an HTML page instead of JSON: the proxy is up but cannot reach the controller. Check that the controller and its tunnel agent are running."

// tunnelMarkers is evaluated in order against the body of non-2xx
// responses; the first match wins. The markers are specific to the ngrok
// proxy currently in front of the controller.
var tunnelMarkers = []struct {
	substr string
	kind   Kind
	hint   string
}{
	{"ERR_NGROK_8012", KindTunnel, "The tunnel is online but the controller refused the connection. Start the controller API on the forwarded port."},
	{"ERR_NGROK_3200", KindTunnel, "The tunnel endpoint is offline. Restart the tunnel agent next to the controller and update the base URL."},
	{"dial tcp", KindTunnel, "The proxy could not dial the controller. Check the controller's network and the tunnel's upstream address."},
}

// classifyBody reclassifies a generic HTTP failure when the body carries a
// known proxy marker.
func classifyBody(status int, body string) *Failure {
	for _, m := range tunnelMarkers {
		if strings.Contains(body, m.substr) {
			return &Failure{
				Kind:   m.kind,
				Status: status,
				Hint:   m.hint,
				Err:    fmt.Errorf("proxy error %q", m.substr),
			}
		}
	}
	return &Failure{Kind: KindHTTP, Status: status, Err: fmt.Errorf("unexpected status %d", status)}
}

package ptz

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/platewatch/internal/monitoring"
)

// ONVIFConfig describes one ONVIF camera endpoint.
type ONVIFConfig struct {
	Endpoint     string        // e.g. http://192.168.1.64:80/onvif/ptz_service
	ProfileToken string        // Media profile to drive, usually the first
	Username     string
	Password     string
	Timeout      time.Duration // Per-request HTTP timeout
	MoveSpeed    float64       // Normalized pan/tilt speed in (0, 1]
}

// ONVIFClient drives a PTZ camera over ONVIF SOAP. Each operation is a
// single HTTP POST carrying a WS-Security UsernameToken digest header;
// failures are classified into transient and permanent faults so the
// governor can pick the right recovery.
type ONVIFClient struct {
	cfg  ONVIFConfig
	http *http.Client
	now  func() time.Time
}

// NewONVIFClient creates a client for one camera. No connection is
// attempted here; the first operation surfaces reachability.
func NewONVIFClient(cfg ONVIFConfig) *ONVIFClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MoveSpeed <= 0 {
		cfg.MoveSpeed = 0.5
	}
	return &ONVIFClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

const ptzNamespace = "http://www.onvif.org/ver20/ptz/wsdl"

func (c *ONVIFClient) MoveRelative(ctx context.Context, pan, tilt float64) error {
	body := fmt.Sprintf(`<tptz:RelativeMove xmlns:tptz=%q>
  <tptz:ProfileToken>%s</tptz:ProfileToken>
  <tptz:Translation>
    <tt:PanTilt xmlns:tt="http://www.onvif.org/ver10/schema" x="%g" y="%g"/>
  </tptz:Translation>
  <tptz:Speed>
    <tt:PanTilt xmlns:tt="http://www.onvif.org/ver10/schema" x="%g" y="%g"/>
  </tptz:Speed>
</tptz:RelativeMove>`,
		ptzNamespace, xmlEscape(c.cfg.ProfileToken),
		clampAbs(pan, 1), clampAbs(tilt, 1), c.cfg.MoveSpeed, c.cfg.MoveSpeed)
	_, err := c.call(ctx, "RelativeMove", body)
	return err
}

func (c *ONVIFClient) SetZoom(ctx context.Context, delta float64) error {
	body := fmt.Sprintf(`<tptz:RelativeMove xmlns:tptz=%q>
  <tptz:ProfileToken>%s</tptz:ProfileToken>
  <tptz:Translation>
    <tt:Zoom xmlns:tt="http://www.onvif.org/ver10/schema" x="%g"/>
  </tptz:Translation>
</tptz:RelativeMove>`,
		ptzNamespace, xmlEscape(c.cfg.ProfileToken), clampAbs(delta, 1))
	_, err := c.call(ctx, "RelativeMove", body)
	return err
}

func (c *ONVIFClient) RecallPreset(ctx context.Context, id string) error {
	body := fmt.Sprintf(`<tptz:GotoPreset xmlns:tptz=%q>
  <tptz:ProfileToken>%s</tptz:ProfileToken>
  <tptz:PresetToken>%s</tptz:PresetToken>
</tptz:GotoPreset>`,
		ptzNamespace, xmlEscape(c.cfg.ProfileToken), xmlEscape(id))
	_, err := c.call(ctx, "GotoPreset", body)
	return err
}

func (c *ONVIFClient) Stop(ctx context.Context) error {
	body := fmt.Sprintf(`<tptz:Stop xmlns:tptz=%q>
  <tptz:ProfileToken>%s</tptz:ProfileToken>
  <tptz:PanTilt>true</tptz:PanTilt>
  <tptz:Zoom>true</tptz:Zoom>
</tptz:Stop>`, ptzNamespace, xmlEscape(c.cfg.ProfileToken))
	_, err := c.call(ctx, "Stop", body)
	return err
}

// statusResponse matches the subset of GetStatusResponse this client
// reads. Namespace prefixes vary across vendors; element-local matching
// handles all of them.
type statusResponse struct {
	Position struct {
		PanTilt struct {
			X float64 `xml:"x,attr"`
			Y float64 `xml:"y,attr"`
		} `xml:"Position>PanTilt"`
		Zoom struct {
			X float64 `xml:"x,attr"`
		} `xml:"Position>Zoom"`
		MoveStatus struct {
			PanTilt string `xml:"PanTilt"`
			Zoom    string `xml:"Zoom"`
		} `xml:"MoveStatus"`
	} `xml:"Body>GetStatusResponse>PTZStatus"`
}

func (c *ONVIFClient) GetStatus(ctx context.Context) (Status, error) {
	body := fmt.Sprintf(`<tptz:GetStatus xmlns:tptz=%q>
  <tptz:ProfileToken>%s</tptz:ProfileToken>
</tptz:GetStatus>`, ptzNamespace, xmlEscape(c.cfg.ProfileToken))
	raw, err := c.call(ctx, "GetStatus", body)
	if err != nil {
		return Status{}, err
	}

	var resp statusResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return Status{}, Transient("GetStatus", fmt.Errorf("parse response: %w", err))
	}
	p := resp.Position
	return Status{
		Pan:    p.PanTilt.X,
		Tilt:   p.PanTilt.Y,
		Zoom:   p.Zoom.X,
		Moving: p.MoveStatus.PanTilt == "MOVING" || p.MoveStatus.Zoom == "MOVING",
	}, nil
}

// call POSTs one SOAP request and returns the raw response body on
// success, or a classified *Fault.
func (c *ONVIFClient) call(ctx context.Context, op, body string) ([]byte, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Header>%s</s:Header>
  <s:Body>%s</s:Body>
</s:Envelope>`, c.securityHeader(), body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, Permanent(op, err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, refused connections, DNS: the device may come back.
		return nil, Transient(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Transient(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, Permanent(op, fmt.Errorf("authentication rejected (HTTP 401)"))
	case resp.StatusCode >= 300:
		if f := classifySOAPFault(op, raw, resp.StatusCode); f != nil {
			return nil, f
		}
		return nil, Transient(op, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	monitoring.Logf("ptz: onvif %s ok", op)
	return raw, nil
}

// classifySOAPFault inspects a SOAP fault body. Authentication and
// unsupported-action subcodes are permanent; anything else falls back to
// the HTTP status classification.
func classifySOAPFault(op string, raw []byte, status int) *Fault {
	text := string(raw)
	for _, code := range []string{"NotAuthorized", "FailedAuthentication", "ActionNotSupported", "OperationProhibited"} {
		if strings.Contains(text, code) {
			return Permanent(op, fmt.Errorf("SOAP fault %s (HTTP %d)", code, status))
		}
	}
	return nil
}

// securityHeader builds a WS-Security UsernameToken with password
// digest: Base64(SHA1(nonce + created + password)).
func (c *ONVIFClient) securityHeader() string {
	if c.cfg.Username == "" {
		return ""
	}
	nonce := make([]byte, 16)
	rand.Read(nonce)
	created := c.now().UTC().Format(time.RFC3339)

	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(c.cfg.Password))
	digest := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return fmt.Sprintf(`<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
  <wsse:UsernameToken>
    <wsse:Username>%s</wsse:Username>
    <wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest">%s</wsse:Password>
    <wsse:Nonce EncodingType="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary">%s</wsse:Nonce>
    <wsu:Created xmlns:wsu="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">%s</wsu:Created>
  </wsse:UsernameToken>
</wsse:Security>`,
		xmlEscape(c.cfg.Username), digest, base64.StdEncoding.EncodeToString(nonce), created)
}

func xmlEscape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

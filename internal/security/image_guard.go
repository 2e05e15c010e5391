// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ImageGuardService はリスティング画像URLの検証インターフェースを定義する。
// ユーザー入力のURLをサーバーが取得しに行くため、SSRF対策を兼ねる。
type ImageGuardService interface {
	// ValidateImageURL は画像URLの安全性を静的に検証する。
	// httpsスキーム・公開ホストのみ許可し、違反時はエラーを返す。
	ValidateImageURL(rawURL string) error

	// ProbeImage は画像URLへHEADリクエストを送り、画像として取得可能かを確認する。
	// プライベートIP・ループバック・メタデータIPへの接続はクライアント側で
	// ブロックされる（DNS再バインディング攻撃対策を含む）。
	ProbeImage(ctx context.Context, rawURL string) error
}

// blockedNetworks は画像取得でブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースし、ValidateImageURLでの静的検証に使用する。
// safeurlはnet.DialerレベルでDNS解決後のIPアドレスも検証するため、
// DNS再バインディング攻撃はProbeImage側で防止される。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// imageGuard はImageGuardServiceの実装。
type imageGuard struct {
	client *http.Client
}

// NewImageGuard はImageGuardServiceの新しいインスタンスを生成する。
// ProbeImage用のHTTPクライアントはsafeurlで構築し、プライベートIP、
// ループバック、リンクローカル、メタデータIPへの接続をブロックする。
func NewImageGuard(timeout time.Duration) *imageGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return &imageGuard{
		client: safeurl.Client(config).Client,
	}
}

// ValidateImageURL は画像URLの安全性を静的に検証する。
// DNS解決を伴わない事前チェックで、リスティングの作成・更新時に
// HTTPリクエストを送信する前に適用する。
func (g *imageGuard) ValidateImageURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// スキーム検証: httpsのみ許可
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %s (https only)", parsed.Scheme)
	}

	// ホスト検証: 空ホストを拒否
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// IPアドレスの場合: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	// ホスト名の場合: localhost等の危険なホスト名を拒否
	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// ProbeImage は画像URLへHEADリクエストを送り、画像として取得可能かを確認する。
func (g *imageGuard) ProbeImage(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach image URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("not an image: content type %q", contentType)
	}

	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}

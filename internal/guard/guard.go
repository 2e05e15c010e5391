// Package guard は保護ルートのアクセス判定チェーンを提供する。
// 各ガードは例外やpanicではなく明示的なOutcome値で判定結果を返す。
// ハンドラーは許可された場合のみ本処理を実行し、拒否された場合は
// Outcomeが指示するリダイレクトとフラッシュ通知を適用する。
package guard

import (
	"context"
	"fmt"

	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/repository"
)

// Outcome はガードの判定結果。
// 許可（Proceed）か、リダイレクト先と通知を伴う拒否（Redirect）のいずれか。
type Outcome struct {
	allow        bool
	redirectPath string
	notice       model.Notice
	rememberPath string
}

// Proceed は許可を表すOutcomeを返す。
func Proceed() Outcome {
	return Outcome{allow: true}
}

// Redirect は拒否を表すOutcomeを返す。
func Redirect(path string, notice model.Notice) Outcome {
	return Outcome{redirectPath: path, notice: notice}
}

// Allowed は判定が許可かどうかを返す。
func (o Outcome) Allowed() bool { return o.allow }

// RedirectPath は拒否時のリダイレクト先を返す。
func (o Outcome) RedirectPath() string { return o.redirectPath }

// Notice は拒否時にセッションへ積むフラッシュ通知を返す。
func (o Outcome) Notice() model.Notice { return o.notice }

// RememberPath は拒否時にセッションへ記録すべき本来の行き先を返す。
// 空文字列の場合は記録しない（未認証拒否のみが戻り先を記録する）。
func (o Outcome) RememberPath() string { return o.rememberPath }

// withRemember は戻り先の記録指示を付与したOutcomeを返す。
func (o Outcome) withRemember(path string) Outcome {
	o.rememberPath = path
	return o
}

// DenialMetrics はガード拒否の計測インターフェース。
// 実装はmetricsパッケージが提供する。nilの場合は計測しない。
type DenialMetrics interface {
	RecordGuardDenial(guard string)
}

// Chain は認証・所有権・作者性のガード群を提供する。
type Chain struct {
	listings repository.ListingRepository
	reviews  repository.ReviewRepository
	metrics  DenialMetrics
}

// NewChain はChainを生成する。metricsはnilでもよい。
func NewChain(listings repository.ListingRepository, reviews repository.ReviewRepository, metrics DenialMetrics) *Chain {
	return &Chain{
		listings: listings,
		reviews:  reviews,
		metrics:  metrics,
	}
}

// RequireLogin は認証済みセッションを要求する。
// 未認証の場合はログインページへの拒否を返し、本来の行き先
// （リクエストのパス）をセッションに記録するよう指示する。
func (c *Chain) RequireLogin(session *model.Session, requestPath string) Outcome {
	if session.IsAuthenticated() {
		return Proceed()
	}

	c.recordDenial("login")
	return Redirect("/login", model.Notice{
		Severity: model.NoticeError,
		Text:     "ログインが必要です。",
	}).withRemember(requestPath)
}

// RequireListingOwner はリスティングの所有者であることを要求する。
// リスティングが存在しない場合は所有者比較に入らず一覧ページへの
// 拒否を返す（削除済みリソースへの操作でクラッシュしない）。
// 所有者でない場合は詳細ページへの拒否を返す。
func (c *Chain) RequireListingOwner(ctx context.Context, userID, listingID string) Outcome {
	listing, err := c.listings.FindByID(ctx, listingID)
	if err != nil {
		// 判定不能時は安全側に倒して拒否する
		c.recordDenial("listing_owner")
		return Redirect("/listings", model.Notice{
			Severity: model.NoticeError,
			Text:     "リスティングの確認に失敗しました。",
		})
	}
	if listing == nil {
		c.recordDenial("listing_owner")
		return Redirect("/listings", model.Notice{
			Severity: model.NoticeError,
			Text:     "リスティングが見つかりません。",
		})
	}

	if listing.OwnerID != userID {
		c.recordDenial("listing_owner")
		return Redirect(fmt.Sprintf("/listings/%s", listingID), model.Notice{
			Severity: model.NoticeError,
			Text:     "この操作を行う権限がありません。",
		})
	}

	return Proceed()
}

// RequireReviewAuthor はレビューの作者であることを要求する。
// レビューが存在しない、または指定リスティングに属さない場合は
// 詳細ページへの拒否を返す（別リスティング経由の削除は不存在と同じ扱い）。
// 作者でない場合も詳細ページへの拒否を返す。
func (c *Chain) RequireReviewAuthor(ctx context.Context, userID, listingID, reviewID string) Outcome {
	review, err := c.reviews.FindByID(ctx, reviewID)
	if err != nil {
		c.recordDenial("review_author")
		return Redirect(fmt.Sprintf("/listings/%s", listingID), model.Notice{
			Severity: model.NoticeError,
			Text:     "レビューの確認に失敗しました。",
		})
	}
	if review == nil || review.ListingID != listingID {
		c.recordDenial("review_author")
		return Redirect(fmt.Sprintf("/listings/%s", listingID), model.Notice{
			Severity: model.NoticeError,
			Text:     "レビューが見つかりません。",
		})
	}

	if review.AuthorID != userID {
		c.recordDenial("review_author")
		return Redirect(fmt.Sprintf("/listings/%s", listingID), model.Notice{
			Severity: model.NoticeError,
			Text:     "この操作を行う権限がありません。",
		})
	}

	return Proceed()
}

func (c *Chain) recordDenial(guard string) {
	if c.metrics != nil {
		c.metrics.RecordGuardDenial(guard)
	}
}

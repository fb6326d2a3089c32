package domain

import (
	"encoding/json"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/tidwall/gjson"
)

// wrapperFields lists the wrapper keys in resolution priority order.
var wrapperFields = []struct {
	key     string
	variant Variant
}{
	{key: "auction", variant: VariantAuction},
	{key: "crowdfunding", variant: VariantCrowdfunding},
	{key: "multipleChoice", variant: VariantMultipleChoice},
}

// ResolveJSON classifies a JSON post as returned by the platform API.
//
// A top-level postUuid marks the unwrapped form; its variant comes from the
// "type" hint when present and from variant-only fields otherwise. Without a
// postUuid the payload is read as a Wrapper.
func ResolveJSON(raw []byte) (Post, Variant, error) {
	if !gjson.ValidBytes(raw) {
		return nil, "", apperrors.New(apperrors.CodeMalformedPost, "post payload is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, "", apperrors.New(apperrors.CodeMalformedPost, "post payload is not a JSON object")
	}

	if root.Get("postUuid").Exists() {
		variant, ok := detectUnwrappedVariant(root)
		if !ok {
			return nil, "", apperrors.WithMetadata(apperrors.CodeUnknownPostVariant, "unwrapped post matches no variant", map[string]string{
				"post_uuid": root.Get("postUuid").String(),
			})
		}
		return decodeVariant(variant, raw)
	}

	for _, field := range wrapperFields {
		value := root.Get(field.key)
		if value.IsObject() {
			return decodeVariant(field.variant, []byte(value.Raw))
		}
	}
	return nil, "", apperrors.New(apperrors.CodeUnknownPostVariant, "wrapper carries no post variant")
}

func detectUnwrappedVariant(root gjson.Result) (Variant, bool) {
	if hint := root.Get("type"); hint.Exists() {
		return ParseVariant(hint.String())
	}
	switch {
	case root.Get("targetBackerCount").Exists(), root.Get("currentBackerCount").Exists():
		return VariantCrowdfunding, true
	case root.Get("totalVotes").Exists(), len(root.Get("options.#.voteCount").Array()) > 0:
		return VariantMultipleChoice, true
	case root.Get("totalAmountUsdCents").Exists(), len(root.Get("options.#.supporterCount").Array()) > 0:
		return VariantAuction, true
	}
	return "", false
}

func decodeVariant(variant Variant, raw []byte) (Post, Variant, error) {
	var post Post
	switch variant {
	case VariantAuction:
		post = &Auction{}
	case VariantCrowdfunding:
		post = &Crowdfunding{}
	case VariantMultipleChoice:
		post = &MultipleChoice{}
	default:
		return nil, "", apperrors.New(apperrors.CodeUnknownPostVariant, "unknown post variant "+string(variant))
	}
	if err := json.Unmarshal(raw, post); err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeMalformedPost, "decode "+string(variant)+" post", err)
	}
	if post.Common().PostUUID == "" {
		return nil, "", apperrors.New(apperrors.CodeMalformedPost, string(variant)+" post has no postUuid")
	}
	return post, variant, nil
}

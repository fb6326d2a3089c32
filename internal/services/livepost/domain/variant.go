package domain

import (
	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
)

// ErrUnknownPostVariant matches any error reporting a payload that is none of
// the three decision variants.
var ErrUnknownPostVariant = apperrors.New(apperrors.CodeUnknownPostVariant, "unknown post variant")

// Resolve classifies a post payload and returns its variant.
//
// payload is either a Wrapper (value or pointer), whose fields are inspected in
// the order auction, crowdfunding, multiple choice, or an already-unwrapped
// *Auction, *Crowdfunding or *MultipleChoice. Resolving a resolved post returns
// the same post and tag.
func Resolve(payload any) (Post, Variant, error) {
	switch p := payload.(type) {
	case *Auction:
		if p != nil {
			return p, VariantAuction, nil
		}
	case *Crowdfunding:
		if p != nil {
			return p, VariantCrowdfunding, nil
		}
	case *MultipleChoice:
		if p != nil {
			return p, VariantMultipleChoice, nil
		}
	case Wrapper:
		return resolveWrapper(&p)
	case *Wrapper:
		if p != nil {
			return resolveWrapper(p)
		}
	}
	return nil, "", apperrors.New(apperrors.CodeUnknownPostVariant, "payload matches no post variant")
}

func resolveWrapper(w *Wrapper) (Post, Variant, error) {
	switch {
	case w.Auction != nil:
		return w.Auction, VariantAuction, nil
	case w.Crowdfunding != nil:
		return w.Crowdfunding, VariantCrowdfunding, nil
	case w.MultipleChoice != nil:
		return w.MultipleChoice, VariantMultipleChoice, nil
	}
	return nil, "", apperrors.New(apperrors.CodeUnknownPostVariant, "wrapper carries no post variant")
}

// ParseVariant maps a variant name, as used in JSON type hints, to a Variant.
func ParseVariant(raw string) (Variant, bool) {
	switch raw {
	case "auction", "ac":
		return VariantAuction, true
	case "crowdfunding", "cf":
		return VariantCrowdfunding, true
	case "multiple_choice", "multipleChoice", "mc":
		return VariantMultipleChoice, true
	}
	return "", false
}

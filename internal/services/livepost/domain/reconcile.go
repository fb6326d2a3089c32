package domain

// Reconcile folds evt into the snapshot field by field and reports whether
// anything changed.
//
// Numeric aggregates are replaced only when the event carries a non-zero value.
// Versioned updates at or below the snapshot revision are ignored, and so are
// updates tagged with a variant other than the snapshot's. Applying the
// same event twice leaves the snapshot as applying it once.
func Reconcile(s *Snapshot, evt Event) bool {
	if s == nil || s.Post == nil {
		return false
	}
	switch e := evt.(type) {
	case PostUpdated:
		return reconcilePostUpdated(s, e)
	case *PostUpdated:
		if e != nil {
			return reconcilePostUpdated(s, *e)
		}
	case CoverImageUpdated:
		return reconcileCoverImage(s.Post.Common(), e)
	case *CoverImageUpdated:
		if e != nil {
			return reconcileCoverImage(s.Post.Common(), *e)
		}
	}
	return false
}

func reconcilePostUpdated(s *Snapshot, e PostUpdated) bool {
	if !e.MatchesVariant(s.Post.Tag()) {
		return false
	}
	if e.Revision > 0 {
		if e.Revision <= s.Revision {
			return false
		}
		s.Revision = e.Revision
	}

	changed := replaceInt32(&s.Post.Common().Status, e.Status)
	switch p := s.Post.(type) {
	case *Auction:
		changed = replaceInt64(&p.TotalAmountUSDCents, e.TotalAmountUSDCents) || changed
	case *Crowdfunding:
		changed = replaceInt64(&p.TotalAmountUSDCents, e.TotalAmountUSDCents) || changed
		changed = replaceInt64(&p.CurrentBackerCount, e.CurrentBackerCount) || changed
	case *MultipleChoice:
		changed = replaceInt64(&p.TotalVotes, e.TotalVotes) || changed
	}
	return changed
}

func reconcileCoverImage(d *Details, e CoverImageUpdated) bool {
	var field *string
	switch e.Target {
	case CoverTargetAnnouncement:
		field = &d.AnnouncementCoverImage
	case CoverTargetResponse:
		field = &d.ResponseCoverImage
	default:
		return false
	}

	next := *field
	switch e.Action {
	case CoverActionUpdated:
		next = e.URL
	case CoverActionDeleted:
		next = ""
	default:
		return false
	}
	if next == *field {
		return false
	}
	*field = next
	return true
}

func replaceInt64(field *int64, reported int64) bool {
	if reported == 0 || *field == reported {
		return false
	}
	*field = reported
	return true
}

func replaceInt32(field *int32, reported int32) bool {
	if reported == 0 || *field == reported {
		return false
	}
	*field = reported
	return true
}

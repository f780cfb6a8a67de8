package model_test

import (
	"testing"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTriggerType(t *testing.T) {
	Convey("Given the trigger types", t, func() {
		Convey("When checking which ones bypass the debounce window", func() {
			Convey("Then manual and rating_deleted are immediate", func() {
				So(model.TriggerManual.Immediate(), ShouldBeTrue)
				So(model.TriggerRatingDeleted.Immediate(), ShouldBeTrue)
			})

			Convey("Then rating_added, rating_updated, and scheduled are debounced", func() {
				So(model.TriggerRatingAdded.Immediate(), ShouldBeFalse)
				So(model.TriggerRatingUpdated.Immediate(), ShouldBeFalse)
				So(model.TriggerScheduled.Immediate(), ShouldBeFalse)
			})
		})

		Convey("When validating trigger types", func() {
			Convey("Then known types pass and arbitrary strings fail", func() {
				So(model.TriggerRatingAdded.Valid(), ShouldBeTrue)
				So(model.TriggerScheduled.Valid(), ShouldBeTrue)
				So(model.TriggerType("reboot").Valid(), ShouldBeFalse)
				So(model.TriggerType("").Valid(), ShouldBeFalse)
			})
		})
	})
}

func TestRatingEvent(t *testing.T) {
	Convey("Given a rating with partial sub-scores", t, func() {
		r := model.RatingEvent{
			ID:      "r1",
			UserID:  "u1",
			ItemID:  "i1",
			Overall: 4,
			SubScores: map[attribute.Attribute]float64{
				attribute.Acidity: 4.5,
			},
		}

		Convey("When reading a scored attribute", func() {
			v, ok := r.SubScore(attribute.Acidity)

			Convey("Then the value is returned", func() {
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 4.5)
			})
		})

		Convey("When reading an unscored attribute", func() {
			_, ok := r.SubScore(attribute.Body)

			Convey("Then it reports absence rather than zero", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})
}

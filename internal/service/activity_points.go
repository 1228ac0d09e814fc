package service

import "strings"

// ActivityType 表示会员可记录的活动种类。
type ActivityType string

const (
	ActivityLogin        ActivityType = "login"
	ActivityDevotional   ActivityType = "devotional"
	ActivityPrayerSubmit ActivityType = "prayer_submit"
	ActivityPrayerPray   ActivityType = "prayer_pray"
	ActivityContentView  ActivityType = "content_view"
	ActivityEventAttend  ActivityType = "event_attend"
	ActivityDonation     ActivityType = "donation"
	ActivityCheckin      ActivityType = "checkin"
)

// activityPoints 每次活动的固定积分，启动后不可变。
var activityPoints = map[ActivityType]int{
	ActivityLogin:        1,
	ActivityDevotional:   10,
	ActivityPrayerSubmit: 5,
	ActivityPrayerPray:   3,
	ActivityContentView:  2,
	ActivityEventAttend:  15,
	ActivityDonation:     20,
	ActivityCheckin:      5,
}

// streakCounterColumns 活动类型到 engagement_streaks 计数列；login/checkin 不计入分类计数。
var streakCounterColumns = map[ActivityType]string{
	ActivityDevotional:   "devotionals_read",
	ActivityPrayerSubmit: "prayers_submitted",
	ActivityPrayerPray:   "prayers_prayed_for",
	ActivityContentView:  "content_viewed",
	ActivityEventAttend:  "events_attended",
	ActivityDonation:     "donations_made",
}

// ParseActivityType 校验并规范化活动类型。
func ParseActivityType(raw string) (ActivityType, bool) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := activityPoints[t]
	return t, ok
}

// Points 返回该活动类型的单次积分，未知类型为 0。
func (t ActivityType) Points() int {
	return activityPoints[t]
}

// StreakColumn 返回该活动对应的计数列，无映射时 ok 为 false。
func (t ActivityType) StreakColumn() (string, bool) {
	column, ok := streakCounterColumns[t]
	return column, ok
}

// ActivityTypes 返回全部合法活动类型，顺序固定。
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityLogin,
		ActivityDevotional,
		ActivityPrayerSubmit,
		ActivityPrayerPray,
		ActivityContentView,
		ActivityEventAttend,
		ActivityDonation,
		ActivityCheckin,
	}
}

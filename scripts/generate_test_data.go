package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shepherd/internal/config"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

// 测试数据生成器
func main() {
	// 初始化数据库
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("读取配置失败:", err)
	}
	if err := db.Init(cfg.DatabaseURL, nil); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	if _, err := db.EnsureUser(db.DB, "admin", "admin123"); err != nil {
		log.Fatal("创建管理员失败:", err)
	}

	createTestAchievements()
	members := createTestMembers()
	createTestShifts(time.Now())
	createTestActivity(members, cfg.Location())
	createTestLeads(time.Now())
	createTestDevotional(time.Now().In(cfg.Location()))

	fmt.Println("测试数据生成完成！")
	fmt.Println("管理员: admin (密码: admin123)")
	fmt.Printf("会员: %d 位，志愿时段: 4 个，线索: 4 条\n", len(members))
}

// 创建成就定义
func createTestAchievements() {
	var count int64
	db.DB.Model(&db.Achievement{}).Count(&count)
	if count > 0 {
		fmt.Println("成就已存在，跳过创建")
		return
	}

	achievements := []db.Achievement{
		{Key: "first-steps", Name: "First Steps", Icon: "footprints", Metric: "total_days_active", Threshold: 1},
		{Key: "week-streak", Name: "Faithful Week", Icon: "flame", Metric: "current_streak", Threshold: 7},
		{Key: "month-streak", Name: "Faithful Month", Icon: "crown", Metric: "longest_streak", Threshold: 30},
		{Key: "prayer-warrior", Name: "Prayer Warrior", Icon: "hands", Metric: "prayers_prayed_for", Threshold: 25},
		{Key: "devoted-reader", Name: "Devoted Reader", Icon: "book", Metric: "devotionals_read", Threshold: 10},
		{Key: "century", Name: "Century", Icon: "star", Metric: "engagement_score", Threshold: 100},
	}
	if err := db.DB.Create(&achievements).Error; err != nil {
		log.Fatal("创建成就失败:", err)
	}
	fmt.Println("✅ 成就定义创建完成")
}

// 创建测试会员，已存在时直接返回现有会员
func createTestMembers() []db.Member {
	var existing []db.Member
	db.DB.Order("id ASC").Find(&existing)
	if len(existing) > 0 {
		fmt.Println("会员已存在，跳过创建")
		return existing
	}

	members := []db.Member{
		{FirstName: "Ruth", LastName: "Moab", Email: "ruth@example.com", Tier: db.TierCovenant, DevotionalOptIn: true},
		{FirstName: "Boaz", LastName: "Judah", Email: "boaz@example.com", Tier: db.TierPartner, DevotionalOptIn: true},
		{FirstName: "Naomi", Email: "naomi@example.com", Tier: db.TierFree},
		{FirstName: "Samuel", Email: "samuel@example.com", Tier: db.TierFree, DevotionalOptIn: true},
	}
	for i := range members {
		members[i].AuthUserID = uuid.NewString()
	}
	if err := db.DB.Create(&members).Error; err != nil {
		log.Fatal("创建会员失败:", err)
	}
	fmt.Println("✅ 测试会员创建完成")
	return members
}

// 创建未来两周的志愿时段
func createTestShifts(now time.Time) {
	var count int64
	db.DB.Model(&db.VolunteerShift{}).Count(&count)
	if count > 0 {
		fmt.Println("志愿时段已存在，跳过创建")
		return
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	volunteers := service.NewVolunteerService(db.DB)
	shifts := []service.ShiftInput{
		{Title: "Sunday Greeter", Ministry: "Hospitality", Location: "Main Entrance", StartsAt: day.AddDate(0, 0, 3).Add(9 * time.Hour), SlotsAvailable: 4},
		{Title: "Food Pantry", Ministry: "Outreach", Location: "Fellowship Hall", StartsAt: day.AddDate(0, 0, 5).Add(17 * time.Hour), SlotsAvailable: 8},
		{Title: "Kids Church", Ministry: "Children", Location: "Room 101", StartsAt: day.AddDate(0, 0, 10).Add(10 * time.Hour), SlotsAvailable: 3},
		{Title: "Worship Team Setup", Ministry: "Worship", Location: "Sanctuary", StartsAt: day.AddDate(0, 0, 14).Add(7 * time.Hour), SlotsAvailable: 2},
	}
	for _, input := range shifts {
		input.EndsAt = input.StartsAt.Add(2 * time.Hour)
		if _, err := volunteers.CreateShift(context.Background(), input); err != nil {
			log.Fatal("创建志愿时段失败:", err)
		}
	}
	fmt.Println("✅ 志愿时段创建完成")
}

// 为第一位会员生成连续一周的活动记录
func createTestActivity(members []db.Member, loc *time.Location) {
	if len(members) == 0 {
		return
	}
	var count int64
	db.DB.Model(&db.DailyActivityLog{}).Count(&count)
	if count > 0 {
		fmt.Println("活动记录已存在，跳过创建")
		return
	}

	engagement := service.NewEngagementService(db.DB)
	engagement.SetLocation(loc)
	start := time.Now().AddDate(0, 0, -6)
	for offset := 0; offset < 7; offset++ {
		day := start.AddDate(0, 0, offset)
		engagement.SetClock(func() time.Time { return day })
		for _, kind := range []string{"login", "devotional", "prayer_pray"} {
			if _, err := engagement.LogActivity(context.Background(), members[0].ID, kind); err != nil {
				log.Fatal("记录活动失败:", err)
			}
		}
	}
	fmt.Println("✅ 活动记录创建完成")
}

// 创建测试线索
func createTestLeads(now time.Time) {
	var count int64
	db.DB.Model(&db.Lead{}).Count(&count)
	if count > 0 {
		fmt.Println("线索已存在，跳过创建")
		return
	}

	recent := now.AddDate(0, 0, -3)
	stale := now.AddDate(0, -4, 0)
	leads := service.NewLeadService(db.DB, nil)
	inputs := []service.LeadInput{
		{FirstName: "Lydia", Email: "lydia@example.com", Phone: "555-0101", Source: "website", Interests: []string{"worship", "small groups"}, ActivityCount: 6, LastContactAt: &recent},
		{FirstName: "Cornelius", Email: "cornelius@example.com", Source: "event", Interests: []string{"men's ministry"}, ActivityCount: 2},
		{FirstName: "Priscilla", Email: "priscilla@example.com", Phone: "555-0103", Source: "referral", Interests: []string{"bible study", "outreach", "youth", "missions"}, ActivityCount: 12, LastContactAt: &recent},
		{FirstName: "Demas", Email: "demas@example.com", Source: "website", LastContactAt: &stale},
	}
	for _, input := range inputs {
		lead, err := leads.Create(context.Background(), input)
		if err != nil {
			log.Fatal("创建线索失败:", err)
		}
		if _, err := leads.Score(context.Background(), lead.ID); err != nil {
			log.Fatal("线索评分失败:", err)
		}
	}
	fmt.Println("✅ 测试线索创建完成")
}

// 发布今天的灵修
func createTestDevotional(today time.Time) {
	jobs := service.NewNotificationJobService(db.DB, nil)
	jobs.SetLocation(today.Location())
	if _, err := jobs.PublishDevotional(context.Background(), service.DevotionalInput{
		Title:     "Strength for Today",
		Scripture: "Isaiah 40:31",
		Body:      "Those who hope in the Lord will renew their strength.",
	}); err != nil {
		log.Fatal("发布灵修失败:", err)
	}
	fmt.Println("✅ 今日灵修发布完成")
}

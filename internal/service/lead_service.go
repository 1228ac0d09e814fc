package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 评分来源
const (
	ScoredByAI        = "ai"
	ScoredByHeuristic = "heuristic"
)

const (
	defaultOpenAILeadModel   = "gpt-4o-mini"
	defaultDeepSeekLeadModel = "deepseek-chat"
	leadScoreMaxTokens       = 200
	leadScoreTemperature     = 0.1
	maxLeadReasonRunes       = 1000
	maxLeadNotesRunes        = 2000

	defaultLeadScoringPrompt = "你是教会外展团队的助理。根据线索信息评估其成为活跃会员的可能性，" +
		"只返回 JSON 对象 {\"score\": 0-100 的整数, \"reason\": \"一句话理由\"}。"
)

var (
	// ErrLeadNotFound 在线索不存在时返回
	ErrLeadNotFound = errors.New("lead not found")
	// ErrLeadInvalid 在线索缺少姓名与邮箱时返回
	ErrLeadInvalid = errors.New("lead requires a name or email")
	// ErrLeadScoringDisabled 表示 AI 评分未启用
	ErrLeadScoringDisabled = errors.New("ai lead scoring is disabled")
)

// LeadScore 为一次评分结果
type LeadScore struct {
	Score    int
	Reason   string
	ScoredBy string
}

// LeadScorer 定义线索评分能力，便于替换为不同实现。
type LeadScorer interface {
	ScoreLead(ctx context.Context, lead db.Lead) (LeadScore, error)
}

// HeuristicLeadScorer 使用固定规则打分，结果确定且不依赖外部服务。
type HeuristicLeadScorer struct {
	Now func() time.Time
}

// ScoreLead 实现 LeadScorer
func (h HeuristicLeadScorer) ScoreLead(_ context.Context, lead db.Lead) (LeadScore, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	score := 50
	var reasons []string

	if strings.TrimSpace(lead.Phone) != "" {
		score += 10
		reasons = append(reasons, "has phone")
	}

	if tags := len(lead.InterestTags()); tags > 0 {
		score += min(tags*5, 15)
		reasons = append(reasons, fmt.Sprintf("%d interests", tags))
	}

	if lead.LastContactAt == nil {
		score -= 5
		reasons = append(reasons, "never contacted")
	} else {
		days := now().Sub(*lead.LastContactAt).Hours() / 24
		switch {
		case days <= 7:
			score += 15
			reasons = append(reasons, "contacted this week")
		case days <= 30:
			score += 5
			reasons = append(reasons, "contacted this month")
		case days > 90:
			score -= 10
			reasons = append(reasons, "no contact in 90 days")
		}
	}

	if lead.ActivityCount > 0 {
		score += min(lead.ActivityCount*2, 20)
		reasons = append(reasons, fmt.Sprintf("%d activities", lead.ActivityCount))
	}

	return LeadScore{
		Score:    clampScore(score),
		Reason:   strings.Join(reasons, "; "),
		ScoredBy: ScoredByHeuristic,
	}, nil
}

// AILeadScorer 通过当前配置的 AI 平台给线索打分。
type AILeadScorer struct {
	client  *aiChatClient
	enabled bool
}

// NewAILeadScorer 构造 AILeadScorer；enabled 为 false 时总是返回 ErrLeadScoringDisabled。
func NewAILeadScorer(settings *SystemSettingService, enabled bool) *AILeadScorer {
	return &AILeadScorer{
		client:  newAIChatClient(settings, defaultOpenAILeadModel, defaultDeepSeekLeadModel),
		enabled: enabled,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (a *AILeadScorer) SetHTTPClient(client httpDoer) {
	a.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (a *AILeadScorer) SetOpenAIBaseURL(base string) {
	a.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (a *AILeadScorer) SetDeepSeekBaseURL(base string) {
	a.client.SetDeepSeekBaseURL(base)
}

// SetModels 覆盖评分使用的模型，空字符串保留默认模型。
func (a *AILeadScorer) SetModels(openAIModel, deepSeekModel string) {
	a.client.SetOpenAIModel(openAIModel)
	a.client.SetDeepSeekModel(deepSeekModel)
}

type aiLeadScorePayload struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

// ScoreLead 实现 LeadScorer
func (a *AILeadScorer) ScoreLead(ctx context.Context, lead db.Lead) (LeadScore, error) {
	if a == nil || !a.enabled {
		return LeadScore{}, ErrLeadScoringDisabled
	}

	settings, err := a.client.settings.GetSettings()
	if err != nil {
		return LeadScore{}, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.LeadScoringPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultLeadScoringPrompt
	}

	userPrompt := buildLeadPrompt(lead)
	logAIExchange("LEAD", "prompt", userPrompt)

	resp, err := a.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    leadScoreMaxTokens,
		Temperature:  leadScoreTemperature,
		JSONOutput:   true,
	})
	if err != nil {
		return LeadScore{}, err
	}
	logAIExchange("LEAD", "response", resp.Content)

	return parseAILeadScore(resp.Content)
}

func parseAILeadScore(content string) (LeadScore, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload aiLeadScorePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return LeadScore{}, fmt.Errorf("解析评分结果失败: %w", err)
	}
	if payload.Score == nil {
		return LeadScore{}, errors.New("评分结果缺少 score 字段")
	}

	return LeadScore{
		Score:    clampScore(int(*payload.Score + 0.5)),
		Reason:   truncateRunes(strings.TrimSpace(payload.Reason), maxLeadReasonRunes),
		ScoredBy: ScoredByAI,
	}, nil
}

func buildLeadPrompt(lead db.Lead) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "姓名：%s %s\n", strings.TrimSpace(lead.FirstName), strings.TrimSpace(lead.LastName))
	fmt.Fprintf(&builder, "来源：%s\n", lead.Source)
	fmt.Fprintf(&builder, "是否留有电话：%t\n", strings.TrimSpace(lead.Phone) != "")
	fmt.Fprintf(&builder, "兴趣：%s\n", strings.Join(lead.InterestTags(), ", "))
	fmt.Fprintf(&builder, "互动次数：%d\n", lead.ActivityCount)
	if lead.LastContactAt != nil {
		fmt.Fprintf(&builder, "最近联系：%s\n", lead.LastContactAt.Format(dateFormat))
	} else {
		builder.WriteString("最近联系：从未\n")
	}
	if notes := strings.TrimSpace(lead.Notes); notes != "" {
		builder.WriteString("备注：\n")
		builder.WriteString(truncateRunes(notes, 500))
	}
	return builder.String()
}

func clampScore(score int) int {
	return max(0, min(score, 100))
}

// LeadInput 为创建线索的字段
type LeadInput struct {
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	Source        string
	Interests     []string
	Notes         string
	ActivityCount int
	LastContactAt *time.Time
}

// LeadService 管理线索并调用评分器；AI 评分失败或未启用时回退到启发式规则。
type LeadService struct {
	db       *gorm.DB
	scorer   LeadScorer
	fallback HeuristicLeadScorer
	now      func() time.Time
	policy   *bluemonday.Policy
}

// NewLeadService 构造 LeadService，scorer 可以为 nil（仅使用启发式规则）。
func NewLeadService(gdb *gorm.DB, scorer LeadScorer) *LeadService {
	return &LeadService{
		db:     gdb,
		scorer: scorer,
		now:    time.Now,
		policy: bluemonday.StrictPolicy(),
	}
}

// SetClock 覆盖当前时间来源，主要用于测试。
func (s *LeadService) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
	s.fallback.Now = now
}

// Create 新建线索
func (s *LeadService) Create(ctx context.Context, input LeadInput) (*db.Lead, error) {
	lead := db.Lead{
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:         strings.TrimSpace(input.Phone),
		Source:        strings.TrimSpace(input.Source),
		Interests:     normalizeInterests(input.Interests),
		Notes:         truncateRunes(strings.TrimSpace(s.policy.Sanitize(input.Notes)), maxLeadNotesRunes),
		Status:        "new",
		ActivityCount: max(input.ActivityCount, 0),
		LastContactAt: input.LastContactAt,
	}
	if lead.FirstName == "" && lead.LastName == "" && lead.Email == "" {
		return nil, ErrLeadInvalid
	}

	if err := s.db.WithContext(ctx).Create(&lead).Error; err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return &lead, nil
}

// List 返回线索，分数高的在前；status 为空表示全部。
func (s *LeadService) List(ctx context.Context, status string) ([]db.Lead, error) {
	query := s.db.WithContext(ctx).Model(&db.Lead{})
	if status = strings.TrimSpace(status); status != "" {
		query = query.Where("status = ?", status)
	}

	var leads []db.Lead
	if err := query.Order("score DESC").Order("created_at DESC").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// Score 为线索打分并保存结果
func (s *LeadService) Score(ctx context.Context, id uint) (*db.Lead, error) {
	var lead db.Lead
	if err := s.db.WithContext(ctx).First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("find lead: %w", err)
	}

	result := s.scoreWithFallback(ctx, lead)
	scoredAt := s.now()
	if err := s.db.WithContext(ctx).Model(&lead).Updates(map[string]interface{}{
		"score":        result.Score,
		"score_reason": result.Reason,
		"scored_by":    result.ScoredBy,
		"scored_at":    scoredAt,
	}).Error; err != nil {
		return nil, fmt.Errorf("save lead score: %w", err)
	}

	lead.Score = result.Score
	lead.ScoreReason = result.Reason
	lead.ScoredBy = result.ScoredBy
	lead.ScoredAt = &scoredAt
	return &lead, nil
}

func (s *LeadService) scoreWithFallback(ctx context.Context, lead db.Lead) LeadScore {
	if s.scorer != nil {
		result, err := s.scorer.ScoreLead(ctx, lead)
		if err == nil {
			return result
		}
		if !errors.Is(err, ErrLeadScoringDisabled) {
			logging.Logger.Warn("ai lead scoring failed, using heuristic", zap.Uint("lead_id", lead.ID), zap.Error(err))
		}
	}

	result, _ := s.fallback.ScoreLead(ctx, lead)
	return result
}

func normalizeInterests(interests []string) string {
	seen := make(map[string]struct{}, len(interests))
	tags := make([]string, 0, len(interests))
	for _, raw := range interests {
		tag := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, ",", " ")))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return strings.Join(tags, ",")
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}

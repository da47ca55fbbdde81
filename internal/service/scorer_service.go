// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"yuanfen-go/internal/model"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/llm"
	"yuanfen-go/pkg/log"
)

// ScoreResult 是一次两人匹配评分的结构化结果。
type ScoreResult struct {
	Overall   int
	Breakdown model.ScoreBreakdown
	Narrative model.Narrative
	// Fallback 为 true 表示外部服务输出无法解析，本结果是中性兜底值，
	// 调用方必须将对应记录标记为待重评，避免长期污染排序。
	Fallback bool
}

// Scorer 定义了匹配度评分能力。
// 外部推理服务被视为不可信的文本生成：实现必须从自由格式输出中
// 防御性地提取结构化载荷；硬失败（网络/超时/配额）按单个配对返回错误。
type Scorer interface {
	Score(ctx context.Context, a, b model.Dossier) (*ScoreResult, error)
}

type llmScorer struct {
	client llm.Client
}

// NewLLMScorer 创建一个基于外部推理服务的 Scorer。
func NewLLMScorer(client llm.Client) Scorer {
	return &llmScorer{client: client}
}

// scorePayload 是期望模型返回的 JSON 结构。
type scorePayload struct {
	OverallScore         int                  `json:"overallScore"`
	Breakdown            model.ScoreBreakdown `json:"breakdown"`
	Summary              string               `json:"summary"`
	Strengths            []string             `json:"strengths"`
	Challenges           []string             `json:"challenges"`
	Advice               string               `json:"advice"`
	ConversationStarters []string             `json:"conversationStarters"`
}

const scorerSystemPrompt = `你是一位婚恋匹配分析师。根据两份用户画像评估两人的匹配程度。
只输出一个 JSON 对象，不要输出任何其他文字，结构如下：
{"overallScore": 0-100 的整数,
 "breakdown": {"valuesAlignment": 0-100, "lifestyleFit": 0-100, "communicationStyle": 0-100, "sharedInterests": 0-100, "emotionalMaturity": 0-100, "longTermPotential": 0-100},
 "summary": "一段总体评价",
 "strengths": ["两人关系的优势"],
 "challenges": ["可能的挑战"],
 "advice": "给两人的相处建议",
 "conversationStarters": ["开场话题建议"]}`

// Score 调用外部推理服务为一对用户评分。
func (s *llmScorer) Score(ctx context.Context, a, b model.Dossier) (*ScoreResult, error) {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "序列化用户画像失败", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "序列化用户画像失败", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: scorerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("用户 A 画像：\n%s\n\n用户 B 画像：\n%s", aJSON, bJSON)},
	}

	raw, err := s.client.Complete(ctx, messages, nil)
	if err != nil {
		// 网络/超时/配额等硬失败只影响这一个配对
		return nil, apperrors.ScoringFailed(fmt.Sprintf("评分服务调用失败: %d-%d", a.UserID, b.UserID), err)
	}

	payload, ok := extractPayload(raw)
	if !ok {
		// 输出无法解析时退回中性兜底值而不是让整个配对失败，
		// Fallback 标记让调用方把该记录排进重评队列
		log.Warnf("[Scorer] 无法从模型输出中提取结构化评分, pair=%d-%d, 使用兜底值", a.UserID, b.UserID)
		return fallbackResult(), nil
	}

	return &ScoreResult{
		Overall: clampScore(payload.OverallScore),
		Breakdown: model.ScoreBreakdown{
			ValuesAlignment:    clampScore(payload.Breakdown.ValuesAlignment),
			LifestyleFit:       clampScore(payload.Breakdown.LifestyleFit),
			CommunicationStyle: clampScore(payload.Breakdown.CommunicationStyle),
			SharedInterests:    clampScore(payload.Breakdown.SharedInterests),
			EmotionalMaturity:  clampScore(payload.Breakdown.EmotionalMaturity),
			LongTermPotential:  clampScore(payload.Breakdown.LongTermPotential),
		},
		Narrative: model.Narrative{
			Summary:              payload.Summary,
			Strengths:            payload.Strengths,
			Challenges:           payload.Challenges,
			Advice:               payload.Advice,
			ConversationStarters: payload.ConversationStarters,
		},
	}, nil
}

// extractPayload 从自由格式的模型输出中提取第一个完整的 JSON 对象。
// 模型经常在 JSON 前后附带说明文字或 markdown 代码块标记。
func extractPayload(raw string) (*scorePayload, bool) {
	candidate := raw

	// 去掉 markdown 代码块包裹
	if idx := strings.Index(candidate, "```"); idx >= 0 {
		candidate = candidate[idx+3:]
		candidate = strings.TrimPrefix(candidate, "json")
		if end := strings.Index(candidate, "```"); end >= 0 {
			candidate = candidate[:end]
		}
	}

	// 定位第一个花括号配平的 JSON 对象
	start := strings.Index(candidate, "{")
	if start < 0 {
		return nil, false
	}
	depth := 0
	end := -1
	inString := false
	escaped := false
	for i := start; i < len(candidate); i++ {
		ch := candidate[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, false
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &payload); err != nil {
		return nil, false
	}
	// 没有任何分数字段的对象不算有效载荷
	if payload.OverallScore == 0 && payload.Summary == "" {
		return nil, false
	}
	return &payload, true
}

// fallbackResult 返回中性兜底评分。
func fallbackResult() *ScoreResult {
	return &ScoreResult{
		Overall: 50,
		Breakdown: model.ScoreBreakdown{
			ValuesAlignment:    50,
			LifestyleFit:       50,
			CommunicationStyle: 50,
			SharedInterests:    50,
			EmotionalMaturity:  50,
			LongTermPotential:  50,
		},
		Narrative: model.Narrative{
			Summary: "匹配分析暂时不可用，稍后将自动重新评估。",
			Advice:  "不妨先从共同兴趣聊起。",
		},
		Fallback: true,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

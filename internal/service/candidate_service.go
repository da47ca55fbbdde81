// Package service 提供了候选人筛选相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"gorm.io/gorm"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/es"
	"yuanfen-go/pkg/log"
)

// CandidateService 接口定义了候选人筛选操作。
// 筛选是只读的：不产生任何持久化副作用。
type CandidateService interface {
	// SelectCandidates 为 actor 返回一个按匹配潜力排序、截断到上限的候选池。
	// actor 资料缺失或问卷完成度不足时返回 INCOMPLETE_PROFILE。
	SelectCandidates(ctx context.Context, actorID uint, limit int) ([]model.Dossier, error)
}

type candidateService struct {
	userRepo  repository.UserRepository
	matchRepo repository.MatchRepository
	esClient  *elasticsearch.Client
	esIndex   string
	matchCfg  config.MatchConfig
}

// NewCandidateService 创建一个新的 CandidateService 实例。
func NewCandidateService(userRepo repository.UserRepository, matchRepo repository.MatchRepository, esClient *elasticsearch.Client, esCfg config.ElasticsearchConfig, matchCfg config.MatchConfig) CandidateService {
	return &candidateService{
		userRepo:  userRepo,
		matchRepo: matchRepo,
		esClient:  esClient,
		esIndex:   esCfg.IndexName,
		matchCfg:  matchCfg,
	}
}

// orientationClause 描述一类可接受的对方：性别 + 取向集合。
type orientationClause struct {
	gender       string
	orientations []string
}

// complementaryTargets 返回策略定义的"互补取向"子句。
// 双性恋用户会得到两条子句（两种性别各一条）。
func complementaryTargets(gender, orientation string) []orientationClause {
	opposite := "female"
	if gender == "female" {
		opposite = "male"
	}
	sameSeeking := "gay"
	if gender == "female" {
		sameSeeking = "lesbian"
	}

	switch orientation {
	case "straight":
		return []orientationClause{{gender: opposite, orientations: []string{"straight", "bisexual"}}}
	case "gay":
		return []orientationClause{{gender: "male", orientations: []string{"gay", "bisexual"}}}
	case "lesbian":
		return []orientationClause{{gender: "female", orientations: []string{"lesbian", "bisexual"}}}
	case "bisexual":
		oppositeSeeking := "straight"
		return []orientationClause{
			{gender: opposite, orientations: []string{oppositeSeeking, "bisexual"}},
			{gender: gender, orientations: []string{sameSeeking, "bisexual"}},
		}
	default:
		return nil
	}
}

// SelectCandidates 执行候选人检索。
// 过滤条件（互补取向、年龄窗口、排除已评估对象）走 filter/must_not，
// 排序信号（同城 > 同地区、共同兴趣数）走 should 加权，由 ES 打分排序。
func (s *candidateService) SelectCandidates(ctx context.Context, actorID uint, limit int) ([]model.Dossier, error) {
	profile, err := s.userRepo.FindProfileByUserID(actorID)
	if err != nil {
		// 只有确实没建过资料才算前置条件不满足，数据库故障不能伪装成用户可修正的错误
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.IncompleteProfile("资料未完善，无法生成匹配")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载用户资料失败", err)
	}
	if profile.QuestionnaireCompletion < s.matchCfg.CompletionThreshold {
		return nil, apperrors.IncompleteProfile(
			fmt.Sprintf("问卷完成度不足（当前 %d%%，需要 %d%%）", profile.QuestionnaireCompletion, s.matchCfg.CompletionThreshold))
	}

	clauses := complementaryTargets(profile.Gender, profile.Orientation)
	if len(clauses) == 0 {
		log.Warnf("[CandidateService] 未识别的取向配置: userId=%d, orientation=%s", actorID, profile.Orientation)
		return []model.Dossier{}, nil
	}

	// 排除自己和已有匹配记录的对方（幂等：同一有序对不会被重复评估）
	excluded, err := s.matchRepo.CounterpartIDs(actorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询已评估对象失败", err)
	}
	excluded = append(excluded, actorID)

	if limit <= 0 || limit > s.matchCfg.CandidatePoolSize {
		limit = s.matchCfg.CandidatePoolSize
	}

	esQuery := s.buildQuery(profile, clauses, excluded, limit)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "构建候选人查询失败", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.esIndex),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "候选人检索失败", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[CandidateService] Elasticsearch 返回错误: %s", res.String())
		return nil, apperrors.Internal("候选人检索失败")
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source es.ProfileDocument `json:"_source"`
				Score  float64            `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "解析候选人检索响应失败", err)
	}

	// 空候选池是空结果，不是错误
	dossiers := make([]model.Dossier, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		doc := hit.Source
		dossiers = append(dossiers, model.Dossier{
			UserID:      doc.UserID,
			Username:    doc.Username,
			Gender:      doc.Gender,
			Orientation: doc.Orientation,
			Age:         doc.Age,
			City:        doc.City,
			Region:      doc.Region,
			Bio:         doc.Bio,
			Interests:   doc.Interests,
			Completion:  doc.Completion,
		})
	}

	log.Infof("[CandidateService] 候选人检索完成: actorId=%d, 排除 %d 人, 命中 %d 人", actorID, len(excluded), len(dossiers))
	return dossiers, nil
}

// buildQuery 构建候选人检索的 Elasticsearch 查询体。
func (s *candidateService) buildQuery(profile *model.Profile, clauses []orientationClause, excluded []uint, limit int) map[string]interface{} {
	age := profile.Age()
	window := s.matchCfg.AgeWindowYears

	// 互补取向：每条子句是 (性别, 取向集合) 的组合，至少命中其一
	shouldClauses := make([]map[string]interface{}, 0, len(clauses))
	for _, clause := range clauses {
		shouldClauses = append(shouldClauses, map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"gender": clause.gender}},
					{"terms": map[string]interface{}{"orientation": clause.orientations}},
				},
			},
		})
	}

	filters := []map[string]interface{}{
		{"bool": map[string]interface{}{
			"should":               shouldClauses,
			"minimum_should_match": 1,
		}},
		// 对方的问卷也必须完成，否则评分服务拿不到完整画像
		{"range": map[string]interface{}{"completion": map[string]interface{}{"gte": s.matchCfg.CompletionThreshold}}},
	}
	if age > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"age": map[string]interface{}{
				"gte": age - window,
				"lte": age + window,
			}},
		})
	}

	// 排序信号：同城 > 同地区 > 无地域匹配；每个共同兴趣各加一分
	ranking := make([]map[string]interface{}, 0, len(profile.InterestList())+2)
	if profile.City != "" {
		ranking = append(ranking, map[string]interface{}{
			"term": map[string]interface{}{"city": map[string]interface{}{"value": profile.City, "boost": 10}},
		})
	}
	if profile.Region != "" {
		ranking = append(ranking, map[string]interface{}{
			"term": map[string]interface{}{"region": map[string]interface{}{"value": profile.Region, "boost": 4}},
		})
	}
	for _, interest := range profile.InterestList() {
		ranking = append(ranking, map[string]interface{}{
			"term": map[string]interface{}{"interests": map[string]interface{}{"value": interest, "boost": 1}},
		})
	}

	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
				"must_not": []map[string]interface{}{
					{"terms": map[string]interface{}{"user_id": excluded}},
				},
				"should": ranking,
			},
		},
	}
}

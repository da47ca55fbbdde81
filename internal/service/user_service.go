package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	"yuanfen-go/pkg/database"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/es"
	"yuanfen-go/pkg/hash"
	"yuanfen-go/pkg/log"
	"yuanfen-go/pkg/token"
)

// ProfileInput 是资料写入的入参。字段语义与 model.Profile 一致，
// 兴趣与照片以切片给出，存储时折叠为逗号分隔。
type ProfileInput struct {
	Gender                  string     `json:"gender" binding:"required"`
	Orientation             string     `json:"orientation" binding:"required"`
	BirthDate               *time.Time `json:"birthDate"`
	City                    string     `json:"city"`
	Region                  string     `json:"region"`
	Bio                     string     `json:"bio"`
	Interests               []string   `json:"interests"`
	PhotoKeys               []string   `json:"photoKeys"`
	QuestionnaireCompletion int        `json:"questionnaireCompletion"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	Logout(tokenString string) error
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	// UpsertProfile 写入用户资料并同步到候选检索索引。
	UpsertProfile(ctx context.Context, userID uint, input ProfileInput) (*model.Profile, error)
	GetProfile(userID uint) (*model.User, *model.Profile, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	esIndex    string
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, esCfg config.ElasticsearchConfig) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		esIndex:    esCfg.IndexName,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(username, password string) (*model.User, error) {
	if len(username) < 3 || len(password) < 6 {
		return nil, apperrors.InvalidArg("用户名至少 3 个字符，密码至少 6 个字符")
	}

	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, apperrors.InvalidArg("用户名已存在")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询用户失败", err)
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "密码处理失败", err)
	}

	// 3. 创建新用户
	newUser := &model.User{
		Username: username,
		Password: hashedPassword,
		Role:     "USER",
	}
	if err := s.userRepo.Create(newUser); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.InvalidArg("用户名已存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "创建用户失败", err)
	}

	log.Infof("[UserService] 新用户注册成功: userId=%d, username=%s", newUser.ID, newUser.Username)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", apperrors.Unauthorized("用户名或密码错误")
		}
		return "", "", apperrors.Wrap(apperrors.CodeInternal, "查询用户失败", err)
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", apperrors.Unauthorized("用户名或密码错误")
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeInternal, "生成令牌失败", err)
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeInternal, "生成令牌失败", err)
	}

	return accessToken, refreshToken, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
// token 的剩余有效期作为 Redis key 的过期时间，过期后自动清理。
func (s *userService) Logout(tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return apperrors.Unauthorized("无效的令牌")
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	return database.RDB.Set(context.Background(), "blacklist:"+tokenString, "true", expiration).Err()
}

// RefreshToken 校验 refresh token 并签发新的令牌对。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", apperrors.Unauthorized("无效的刷新令牌")
	}
	newAccessToken, err = s.jwtManager.GenerateToken(claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeInternal, "生成令牌失败", err)
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeInternal, "生成令牌失败", err)
	}
	return newAccessToken, newRefreshToken, nil
}

// UpsertProfile 写入资料并同步候选检索索引。
// 索引失败不回滚数据库，只记日志：检索索引允许短暂滞后，
// 下次资料更新会覆盖式重建文档。
func (s *userService) UpsertProfile(ctx context.Context, userID uint, input ProfileInput) (*model.Profile, error) {
	if !validGender(input.Gender) {
		return nil, apperrors.InvalidArg("不支持的性别取值")
	}
	if !validOrientation(input.Orientation) {
		return nil, apperrors.InvalidArg("不支持的取向取值")
	}
	if input.QuestionnaireCompletion < 0 || input.QuestionnaireCompletion > 100 {
		return nil, apperrors.InvalidArg("问卷完成度必须在 0 到 100 之间")
	}

	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("用户不存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询用户失败", err)
	}

	profile := &model.Profile{
		UserID:                  userID,
		Gender:                  input.Gender,
		Orientation:             input.Orientation,
		BirthDate:               input.BirthDate,
		City:                    input.City,
		Region:                  input.Region,
		Bio:                     input.Bio,
		Interests:               joinCSV(input.Interests),
		PhotoKeys:               joinCSV(input.PhotoKeys),
		QuestionnaireCompletion: input.QuestionnaireCompletion,
	}
	if err := s.userRepo.UpsertProfile(profile); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "保存资料失败", err)
	}

	doc := es.ProfileDocument{
		UserID:      userID,
		Username:    user.Username,
		Gender:      profile.Gender,
		Orientation: profile.Orientation,
		Age:         profile.Age(),
		City:        profile.City,
		Region:      profile.Region,
		Interests:   profile.InterestList(),
		Bio:         profile.Bio,
		Completion:  profile.QuestionnaireCompletion,
	}
	if err := es.IndexProfile(ctx, s.esIndex, doc); err != nil {
		log.Errorf("[UserService] 资料索引同步失败: userId=%d, err=%v", userID, err)
	}

	return profile, nil
}

// GetProfile 返回用户及其资料。资料尚未填写时 profile 为 nil。
func (s *userService) GetProfile(userID uint) (*model.User, *model.Profile, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("用户不存在")
		}
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "查询用户失败", err)
	}
	profile, err := s.userRepo.FindProfileByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, nil, nil
		}
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "查询资料失败", err)
	}
	return user, profile, nil
}

// joinCSV 折叠切片为逗号分隔字符串，空白项被丢弃。
func joinCSV(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return strings.Join(cleaned, ",")
}

func validGender(g string) bool {
	return g == "male" || g == "female"
}

func validOrientation(o string) bool {
	switch o {
	case "straight", "gay", "lesbian", "bisexual":
		return true
	}
	return false
}

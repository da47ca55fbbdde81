// Package model 包含了应用的数据模型定义。
package model

import (
	"strings"
	"time"
)

// User 对应于数据库中的 'users' 表。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Profile 对应于数据库中的 'profiles' 表，每个用户一条。
// 流水线对它只读：资料与问卷由上游采集，这里仅消费其结果。
type Profile struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"userId"`
	// Gender 取值 male/female
	Gender string `gorm:"type:varchar(16);not null" json:"gender"`
	// Orientation 取值 straight/gay/lesbian/bisexual
	Orientation string     `gorm:"type:varchar(16);not null" json:"orientation"`
	BirthDate   *time.Time `json:"birthDate"`
	City        string     `gorm:"type:varchar(64)" json:"city"`
	Region      string     `gorm:"type:varchar(64)" json:"region"`
	Bio         string     `gorm:"type:text" json:"bio"`
	// Interests 逗号分隔的兴趣标签列表
	Interests string `gorm:"type:varchar(512)" json:"interests"`
	// PhotoKeys 逗号分隔的 MinIO 对象名列表
	PhotoKeys string `gorm:"type:varchar(1024)" json:"photoKeys"`
	// QuestionnaireCompletion 问卷完成度（0-100）
	QuestionnaireCompletion int       `gorm:"not null;default:0" json:"questionnaireCompletion"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Age 根据出生日期计算当前年龄；未填写出生日期时返回 0。
func (p *Profile) Age() int {
	if p.BirthDate == nil {
		return 0
	}
	now := time.Now()
	age := now.Year() - p.BirthDate.Year()
	if now.YearDay() < p.BirthDate.YearDay() {
		age--
	}
	return age
}

// InterestList 将逗号分隔的兴趣标签拆分为切片。
func (p *Profile) InterestList() []string {
	if p.Interests == "" {
		return []string{}
	}
	parts := strings.Split(p.Interests, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PhotoKeyList 将逗号分隔的照片对象名拆分为切片。
func (p *Profile) PhotoKeyList() []string {
	if p.PhotoKeys == "" {
		return []string{}
	}
	parts := strings.Split(p.PhotoKeys, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Dossier 是传给评分服务与审核界面的用户画像聚合。
type Dossier struct {
	UserID      uint     `json:"userId"`
	Username    string   `json:"username"`
	Gender      string   `json:"gender"`
	Orientation string   `json:"orientation"`
	Age         int      `json:"age"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	Bio         string   `json:"bio"`
	Interests   []string `json:"interests"`
	Completion  int      `json:"completion"`
	PhotoURLs   []string `json:"photoUrls,omitempty"`
}

// BuildDossier 由用户与资料组装 Dossier。
func BuildDossier(user *User, profile *Profile) Dossier {
	return Dossier{
		UserID:      user.ID,
		Username:    user.Username,
		Gender:      profile.Gender,
		Orientation: profile.Orientation,
		Age:         profile.Age(),
		City:        profile.City,
		Region:      profile.Region,
		Bio:         profile.Bio,
		Interests:   profile.InterestList(),
		Completion:  profile.QuestionnaireCompletion,
	}
}

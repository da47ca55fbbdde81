// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"yuanfen-go/internal/config"
	"yuanfen-go/pkg/log"
)

var ESClient *elasticsearch.Client

// ProfileDocument 是写入候选人索引的资料文档。
// 候选人检索（取向/年龄过滤、同城/同地区/共同兴趣加权）都基于该文档。
type ProfileDocument struct {
	UserID      uint     `json:"user_id"`
	Username    string   `json:"username"`
	Gender      string   `json:"gender"`
	Orientation string   `json:"orientation"`
	Age         int      `json:"age"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	Interests   []string `json:"interests"`
	Bio         string   `json:"bio"`
	Completion  int      `json:"completion"`
}

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 过滤字段使用 keyword/integer；bio 使用 ik 中文分词器
	mapping := `{
		"mappings": {
			"properties": {
				"user_id": { "type": "long" },
				"username": { "type": "keyword" },
				"gender": { "type": "keyword" },
				"orientation": { "type": "keyword" },
				"age": { "type": "integer" },
				"city": { "type": "keyword" },
				"region": { "type": "keyword" },
				"interests": { "type": "keyword" },
				"bio": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"completion": { "type": "integer" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexProfile 将一份资料文档写入（或覆盖）候选人索引。
// 文档 ID 使用用户 ID，资料更新时天然幂等。
func IndexProfile(ctx context.Context, indexName string, doc ProfileDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", doc.UserID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引资料文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index profile document")
	}

	return nil
}

// DeleteProfile 从候选人索引中删除一份资料文档。
func DeleteProfile(ctx context.Context, indexName string, userID uint) error {
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", userID),
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// 文档不存在视为已删除
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除资料文档出错: %s", res.String())
		return errors.New("failed to delete profile document")
	}

	return nil
}

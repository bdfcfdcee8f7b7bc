package types

import (
	"strings"
	"time"
)

// Claim 待验证的声明，请求时创建，管线运行期间不可变
type Claim struct {
	Text     string  `json:"text"`
	TenantID string  `json:"tenant_id,omitempty"`
	Filters  Filters `json:"filters,omitempty"`
}

// Validate 校验声明文本
func (c Claim) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return NewInvalidRequestError("claim text must not be empty")
	}
	return c.Filters.Validate()
}

// Filters 检索过滤条件，同时下推到向量和关键词两个子查询
type Filters struct {
	TenantID        string     `json:"tenant_id,omitempty"`
	Sources         []string   `json:"sources,omitempty"`
	PublishedAfter  *time.Time `json:"published_after,omitempty"`
	PublishedBefore *time.Time `json:"published_before,omitempty"`
}

// Validate 校验日期范围
func (f Filters) Validate() error {
	if f.PublishedAfter != nil && f.PublishedBefore != nil && f.PublishedAfter.After(*f.PublishedBefore) {
		return NewInvalidRequestError("published_after must not be later than published_before")
	}
	return nil
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.TenantID == "" && len(f.Sources) == 0 && f.PublishedAfter == nil && f.PublishedBefore == nil
}

// Match reports whether a record with the given attributes passes the filters.
// Stores that cannot push filters into a query engine use it directly.
func (f Filters) Match(tenantID, source string, publishedAt *time.Time) bool {
	if f.TenantID != "" && f.TenantID != tenantID {
		return false
	}
	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PublishedAfter != nil || f.PublishedBefore != nil {
		if publishedAt == nil {
			return false
		}
		if f.PublishedAfter != nil && publishedAt.Before(*f.PublishedAfter) {
			return false
		}
		if f.PublishedBefore != nil && publishedAt.After(*f.PublishedBefore) {
			return false
		}
	}
	return true
}

// Copyright (c) 2025 Justin Cranford

package repository

import "math"

// PageRequest is carried by the paged "list" repository methods (roles,
// groups, custom permissions, drafts, versions, users, webhook
// endpoints); ListChildren, ListChildEdges, ListFamily and the realm
// List return every matching row unpaged (supplemented
// per original_source/src/domain/pagination.rs; spec.md doesn't spell
// pagination out but admin listing over a multi-tenant RBAC graph needs
// it in practice).
type PageRequest struct {
	Page    int64
	PerPage int64
	SortBy  string
	Desc    bool
	Query   string
}

// Normalize fills in defaults for a zero-value PageRequest.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 200 {
		p.PerPage = 200
	}
	return p
}

func (p PageRequest) offset() int { return int((p.Page - 1) * p.PerPage) }
func (p PageRequest) limit() int  { return int(p.PerPage) }

// PageMeta is the pagination envelope returned alongside a page of data.
type PageMeta struct {
	Total      int64
	Page       int64
	PerPage    int64
	TotalPages int64
}

// PageResponse wraps a page of T with its PageMeta.
type PageResponse[T any] struct {
	Data []T
	Meta PageMeta
}

// NewPageResponse computes TotalPages from total/per_page.
func NewPageResponse[T any](data []T, total int64, req PageRequest) PageResponse[T] {
	req = req.Normalize()
	totalPages := int64(math.Ceil(float64(total) / float64(req.PerPage)))
	return PageResponse[T]{
		Data: data,
		Meta: PageMeta{
			Total:      total,
			Page:       req.Page,
			PerPage:    req.PerPage,
			TotalPages: totalPages,
		},
	}
}

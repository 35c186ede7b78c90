package service

import (
	"sort"
	"strings"

	"github.com/limbovvv/phone-directly/internal/domain"
)

const (
	// DefaultImportDepartment 导入行未给出部门路径时使用的部门
	DefaultImportDepartment = "Imported"

	// PathSeparator 导出时拼接部门路径
	PathSeparator = " / "
)

// DepartmentNode 部门树节点
type DepartmentNode struct {
	ID        int64             `json:"id"`
	ParentID  *int64            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
	SortOrder int               `json:"sort_order"`
	IsActive  bool              `json:"is_active"`
	Children  []*DepartmentNode `json:"children"`
}

func newDepartmentNode(d *domain.Department) *DepartmentNode {
	n := &DepartmentNode{
		ID:        d.ID,
		Name:      d.Name,
		SortOrder: d.SortOrder,
		IsActive:  d.IsActive,
		Children:  []*DepartmentNode{},
	}
	if d.ParentID.Valid {
		pid := d.ParentID.Int64
		n.ParentID = &pid
	}
	return n
}

// sortDepartments 同级按 sort_order，再按创建顺序（id）
func sortDepartments(depts []*domain.Department) {
	sort.SliceStable(depts, func(i, j int) bool {
		if depts[i].SortOrder != depts[j].SortOrder {
			return depts[i].SortOrder < depts[j].SortOrder
		}
		return depts[i].ID < depts[j].ID
	})
}

// BuildForest 组装部门森林
// 上级不在集合中的部门（例如上级已停用且只取启用部门）不出现在结果中
func BuildForest(depts []*domain.Department) []*DepartmentNode {
	sorted := append([]*domain.Department(nil), depts...)
	sortDepartments(sorted)

	nodes := make(map[int64]*DepartmentNode, len(sorted))
	for _, d := range sorted {
		nodes[d.ID] = newDepartmentNode(d)
	}

	roots := []*DepartmentNode{}
	for _, d := range sorted {
		n := nodes[d.ID]
		if !d.ParentID.Valid {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[d.ParentID.Int64]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	return roots
}

// childrenIndex parent_id -> 子部门 id（有序）
func childrenIndex(depts []*domain.Department) map[int64][]int64 {
	sorted := append([]*domain.Department(nil), depts...)
	sortDepartments(sorted)

	children := make(map[int64][]int64)
	for _, d := range sorted {
		if d.ParentID.Valid {
			children[d.ParentID.Int64] = append(children[d.ParentID.Int64], d.ID)
		}
	}
	return children
}

// SubtreeIDs 返回 rootID 及其全部后代（深度优先）
// 树中出现环时返回 ErrDataIntegrity
func SubtreeIDs(depts []*domain.Department, rootID int64) ([]int64, error) {
	known := false
	for _, d := range depts {
		if d.ID == rootID {
			known = true
			break
		}
	}
	if !known {
		return nil, domain.NotFoundf("department %d", rootID)
	}

	children := childrenIndex(depts)
	visited := make(map[int64]bool, len(depts))
	ids := []int64{}

	stack := []int64{rootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			return nil, domain.Integrityf("department cycle detected at %d", id)
		}
		visited[id] = true
		ids = append(ids, id)

		kids := children[id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return ids, nil
}

// PathToRoot 部门名称，从根到叶
func PathToRoot(byID map[int64]*domain.Department, id int64) ([]string, error) {
	d, ok := byID[id]
	if !ok {
		return nil, domain.NotFoundf("department %d", id)
	}

	names := []string{}
	visited := make(map[int64]bool)
	for {
		if visited[d.ID] {
			return nil, domain.Integrityf("department cycle detected at %d", d.ID)
		}
		visited[d.ID] = true
		names = append(names, d.Name)

		if !d.ParentID.Valid {
			break
		}
		parent, ok := byID[d.ParentID.Int64]
		if !ok {
			return nil, domain.Integrityf("department %d references missing parent %d", d.ID, d.ParentID.Int64)
		}
		d = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// JoinPath 拼接部门路径（导出）
func JoinPath(names []string) string {
	return strings.Join(names, PathSeparator)
}

// SplitPath 拆分部门路径（导入）：按 "/" 切分并去除空白段
// 空路径回落到 DefaultImportDepartment
func SplitPath(path string) []string {
	segments := []string{}
	for _, part := range strings.Split(path, domain.DepartmentPathDelimiter) {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 0 {
		return []string{DefaultImportDepartment}
	}
	return segments
}

func indexDepartments(depts []*domain.Department) map[int64]*domain.Department {
	byID := make(map[int64]*domain.Department, len(depts))
	for _, d := range depts {
		byID[d.ID] = d
	}
	return byID
}

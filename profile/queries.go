package profile

import "math/rand"

// DiscoveryQueries 由 Top 类目派生最多 count 条发现查询。
// 类目不足时用通用查询随机补齐；冷启动画像只返回通用查询。
// 不承诺确定性：同一画像多次调用可产出不同查询，以制造多样性。
// count > 0 时保证返回非空。
func (p *Profile) DiscoveryQueries(count int) []string {
	if count <= 0 {
		return nil
	}

	queries := p.TopGenres(count)
	if len(queries) >= count {
		return queries[:count]
	}

	// 通用查询乱序补齐，跳过与类目重复的
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		seen[q] = struct{}{}
	}
	perm := rand.Perm(len(genericQueries))
	for _, i := range perm {
		if len(queries) >= count {
			break
		}
		q := genericQueries[i]
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

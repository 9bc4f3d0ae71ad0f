package catalog

// Reference analytical workload over the offers/events tables.
var defaultQueries = map[string]string{
	"top_categories": `
		SELECT
			category_id,
			sum(product_count) AS product_count
		FROM catalog_by_category_mv
		GROUP BY category_id
		ORDER BY product_count DESC
		LIMIT 20`,
	"top_brands": `
		SELECT
			vendor,
			sum(product_count) AS product_count
		FROM catalog_by_brand_mv
		GROUP BY vendor
		ORDER BY product_count DESC
		LIMIT 30`,
	"device_activity": `
		SELECT
			DeviceTypeName,
			sum(event_count) AS total
		FROM events_by_device_mv
		GROUP BY DeviceTypeName`,
	"coverage_analysis": `
		SELECT
			o.category_id,
			COUNT(DISTINCT o.offer_id) AS total,
			COUNT(DISTINCT e.ContentUnitID) AS covered
		FROM ecom_offers o
		LEFT JOIN raw_events e ON o.offer_id = e.ContentUnitID
		GROUP BY o.category_id
		LIMIT 50`,
	"uncovered_offers": `
		SELECT o.offer_id, o.category_id, o.vendor
		FROM ecom_offers o
		LEFT JOIN raw_events e ON o.offer_id = e.ContentUnitID
		WHERE e.ContentUnitID IS NULL
		LIMIT 1000`,
}

// Default returns the built-in five-query workload.
func Default() *Catalog {
	c, err := New(defaultQueries)
	if err != nil {
		panic(err)
	}
	return c
}

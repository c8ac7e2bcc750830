package circuit

// EmissionsData is the plaintext view of an encrypted emissions certificate.
type EmissionsData struct {
	Scope1 uint64 `json:"scope1"`
	Scope2 uint64 `json:"scope2"`
	Scope3 uint64 `json:"scope3"`
	Total  uint64 `json:"total"`
}

// SEMAReport is the plaintext view of an encrypted stakeholder engagement and
// materiality assessment report.
type SEMAReport struct {
	StakeholderCount   uint32 `json:"stakeholder_count"`
	MaterialTopicCount uint32 `json:"material_topic_count"`
	ComplianceScore    uint64 `json:"compliance_score"`
	TotalScore         uint64 `json:"total_score"`
}

func InitEmissions() Sealed[EmissionsData] { return Seal(EmissionsData{}) }

// UpdateEmissions replaces the stored certificate with the submitted data.
// Total is taken as reported.
func UpdateEmissions(data EmissionsData) Sealed[EmissionsData] { return Seal(data) }

// ProveThreshold reveals whether total emissions are at or below threshold.
func ProveThreshold(e EmissionsData, threshold uint64) Revealed[bool] {
	return Reveal(e.Total <= threshold)
}

func InitSEMAReport() Sealed[SEMAReport] { return Seal(SEMAReport{}) }

func UpdateSEMAReport(r SEMAReport) Sealed[SEMAReport] { return Seal(r) }

// ProveSEMACompliance reveals whether the compliance score meets threshold.
func ProveSEMACompliance(r SEMAReport, threshold uint64) Revealed[bool] {
	return Reveal(r.ComplianceScore >= threshold)
}

// CalculateOffsetPercentage is retired*100/total, or 0 for zero emissions.
func CalculateOffsetPercentage(totalEmissions, retiredCredits uint64) Revealed[uint64] {
	if totalEmissions == 0 {
		return Reveal(uint64(0))
	}
	return Reveal(mulDiv(retiredCredits, 100, totalEmissions))
}

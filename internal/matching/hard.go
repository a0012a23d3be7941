// Package matching implements the deterministic hard-match and the lexical/semantic
// soft-match scorers. Every function here is pure: inputs are never mutated and
// identical inputs always produce identical results.
package matching

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// Hard-match category weights.
const (
	WeightSkills         = 0.5
	WeightExperience     = 0.3
	WeightEducation      = 0.15
	WeightCertifications = 0.05
)

// Skill sub-score ceilings.
const (
	requiredSkillPoints = 70.0
	optionalSkillPoints = 30.0
)

// HardMatch scores the structured fields of a resume against a job.
func HardMatch(r domain.ResumeRecord, j domain.JobRecord) domain.MatchResult {
	res := domain.MatchResult{
		MatchedSkills:         []string{},
		MissingSkills:         []string{},
		MatchedCertifications: []string{},
		MissingCertifications: []string{},
	}

	resumeSkills := normalizeList(r.Skills)
	required := normalizeList(j.RequiredSkills)
	optional := normalizeList(j.OptionalSkills)

	matchedRequired, missingRequired := partition(required, resumeSkills, SkillThreshold)
	matchedOptional, _ := partition(optional, resumeSkills, SkillThreshold)

	requiredScore := requiredSkillPoints
	if len(required) > 0 {
		requiredScore = float64(len(matchedRequired)) / float64(len(required)) * requiredSkillPoints
	}
	optionalScore := optionalSkillPoints
	if len(optional) > 0 {
		optionalScore = float64(len(matchedOptional)) / float64(len(optional)) * optionalSkillPoints
	}
	res.SkillsMatch = requiredScore + optionalScore
	res.MatchedSkills = append(append(res.MatchedSkills, matchedRequired...), matchedOptional...)
	res.MissingSkills = append(res.MissingSkills, missingRequired...)

	minYears, maxYears := j.ExperienceRange()
	years := ExtractExperienceYears(r.RawText)
	res.ExperienceMatch = ExperienceScore(years, minYears, maxYears)
	res.Details = domain.MatchDetails{
		ResumeExperienceYears: years,
		RequiredExperience:    fmt.Sprintf("%d-%d years", minYears, maxYears),
		MinExperience:         minYears,
		MaxExperience:         maxYears,
	}

	// A resume with no education entries earns 0 against stated requirements,
	// not full credit: an empty section cannot evidence a required degree.
	res.EducationMatch = EducationScore(r.Education, j.EducationRequirements)

	certs := normalizeList(r.Certifications)
	requiredCerts := normalizeList(j.CertificationsRequired)
	matchedCerts, missingCerts := partition(requiredCerts, certs, CertificationThreshold)
	res.CertificationMatch = 100
	if len(requiredCerts) > 0 {
		res.CertificationMatch = float64(len(matchedCerts)) / float64(len(requiredCerts)) * 100
	}
	res.MatchedCertifications = append(res.MatchedCertifications, matchedCerts...)
	res.MissingCertifications = append(res.MissingCertifications, missingCerts...)

	res.OverallHardMatch = res.SkillsMatch*WeightSkills +
		res.ExperienceMatch*WeightExperience +
		res.EducationMatch*WeightEducation +
		res.CertificationMatch*WeightCertifications
	return res
}

// EducationScore is the percentage of requirements found as case-insensitive
// substrings of the resume's degree and context text. No requirements is full credit.
func EducationScore(education []domain.EducationEntry, requirements []string) float64 {
	reqs := normalizeList(requirements)
	if len(reqs) == 0 {
		return 100
	}
	parts := make([]string, 0, len(education)*2)
	for _, e := range education {
		parts = append(parts, strings.ToLower(e.Degree), strings.ToLower(e.Context))
	}
	haystack := strings.Join(parts, " ")
	found := 0
	for _, req := range reqs {
		if strings.Contains(haystack, req) {
			found++
		}
	}
	return float64(found) / float64(len(reqs)) * 100
}

func partition(wanted, have []string, threshold float64) (matched, missing []string) {
	for _, w := range wanted {
		if FuzzyContains(w, have, threshold) {
			matched = append(matched, w)
		} else {
			missing = append(missing, w)
		}
	}
	return matched, missing
}

package model

// Problem is a coded condition attached to a patient. Some exports
// carry the ICD-10 code under "code" instead of "icd10"; both decode.
type Problem struct {
	Title    string `json:"title"`
	ICD10    string `json:"icd10"`
	Code     string `json:"code"`
	Comments string `json:"comments"`
}

// Diagnosis returns the ICD-10 code, whichever key carried it.
func (p Problem) Diagnosis() string {
	if p.ICD10 != "" {
		return p.ICD10
	}
	return p.Code
}

// Medication is an active prescription attached to a patient.
type Medication struct {
	Title  string `json:"title"`
	Dosage string `json:"dosage"`
}

// Allergy is an allergy entry attached to a patient.
type Allergy struct {
	Title    string `json:"title"`
	Reaction string `json:"reaction"`
	Severity string `json:"severity"`
}

// History holds the social and family history form fields. Every
// field is optional; empty values post as empty form fields, which
// the target treats as "not recorded".
type History struct {
	Tobacco             string `json:"tobacco"`
	Alcohol             string `json:"alcohol"`
	ExercisePatterns    string `json:"exercise_patterns"`
	RecreationalDrugs   string `json:"recreational_drugs"`
	Coffee              string `json:"coffee"`
	Counseling          string `json:"counseling"`
	HazardousActivities string `json:"hazardous_activities"`
	AdditionalHistory   string `json:"additional_history"`

	HistoryMother    string `json:"history_mother"`
	HistoryFather    string `json:"history_father"`
	HistorySiblings  string `json:"history_siblings"`
	HistorySpouse    string `json:"history_spouse"`
	HistoryOffspring string `json:"history_offspring"`

	RelativesCancer            string `json:"relatives_cancer"`
	RelativesDiabetes          string `json:"relatives_diabetes"`
	RelativesHighBloodPressure string `json:"relatives_high_blood_pressure"`
	RelativesHeartProblems     string `json:"relatives_heart_problems"`
	RelativesStroke            string `json:"relatives_stroke"`
	RelativesEpilepsy          string `json:"relatives_epilepsy"`
	RelativesMentalIllness     string `json:"relatives_mental_illness"`
	RelativesSuicide           string `json:"relatives_suicide"`
}

// Insurance holds primary coverage details.
type Insurance struct {
	Provider               string     `json:"provider"`
	PlanName               string     `json:"plan_name"`
	PolicyNumber           string     `json:"policy_number"`
	GroupNumber            string     `json:"group_number"`
	SubscriberFirstName    string     `json:"subscriber_fname"`
	SubscriberLastName     string     `json:"subscriber_lname"`
	SubscriberRelationship string     `json:"subscriber_relationship"`
	SubscriberDOB          string     `json:"subscriber_DOB"`
	SubscriberEmployer     string     `json:"subscriber_employer"`
	Copay                  FlexString `json:"copay"`
}

package model

import "time"

// Gym is the single venue owned by an owner.  It corresponds to a row
// in the `gyms` table.  Deleting a gym removes every machine it holds.
//
// Fields:
//
//	ID          – primary key identifier.
//	OwnerID     – gym_owners.id of the owner.
//	Name        – display name.
//	LogoURL     – optional logo location used when rendering QR images.
//	ContactInfo – optional free text.
//	CreatedAt   – timestamp of creation.
type Gym struct {
	ID          uint64    `json:"id"`           // gyms.id
	OwnerID     uint64    `json:"owner_id"`     // gyms.owner_id
	Name        string    `json:"name"`         // gyms.name
	LogoURL     *string   `json:"logo_url"`     // gyms.logo_url (nullable)
	ContactInfo *string   `json:"contact_info"` // gyms.contact_info (nullable)
	CreatedAt   time.Time `json:"created_at"`   // gyms.created_at
}

// Machine is a piece of equipment inside a gym (`gym_machines`).  A
// machine owns at most one QR token and any number of localized content
// rows.
type Machine struct {
	ID               uint64    `json:"id"`                   // gym_machines.id
	GymID            uint64    `json:"gym_id"`               // gym_machines.gym_id
	Name             string    `json:"name"`                 // gym_machines.name
	HowToUseVideoURL *string   `json:"how_to_use_video_url"` // gym_machines.how_to_use_video_url
	LocalVideoPath   *string   `json:"local_video_path"`     // gym_machines.local_video_path
	SafetyTips       *string   `json:"safety_tips"`          // gym_machines.safety_tips
	UsageGuide       *string   `json:"usage_guide"`          // gym_machines.usage_guide
	CreatedAt        time.Time `json:"created_at"`           // gym_machines.created_at
}

// LocalizedContent holds instructions for a machine in one language
// (`multilingual_content`).  One row per (machine, language) by
// convention; updates replace the whole set for a machine.
type LocalizedContent struct {
	ID              uint64    `json:"id"`               // multilingual_content.id
	MachineID       uint64    `json:"machine_id"`       // multilingual_content.machine_id
	LanguageCode    string    `json:"language_code"`    // multilingual_content.language_code
	InstructionText *string   `json:"instruction_text"` // multilingual_content.instruction_text
	SafetyText      *string   `json:"safety_text"`      // multilingual_content.safety_text
	CreatedAt       time.Time `json:"created_at"`       // multilingual_content.created_at
}

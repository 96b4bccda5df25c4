package access

import "time"

// BindingID is the well-known identifier of the single device binding.
const BindingID = "current"

// AccessCode is a single-use credential.
type AccessCode struct {
	ID        string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Code      string     `gorm:"column:code;size:64;not null;uniqueIndex" json:"code"`
	IsUsed    bool       `gorm:"column:is_used;not null;default:false;index" json:"isUsed"`
	UsedAt    *time.Time `gorm:"column:used_at;index" json:"usedAt,omitempty"`
	UsedBy    string     `gorm:"column:used_by;size:64" json:"usedBy,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (AccessCode) TableName() string {
	return "access_codes"
}

// User is the local identity created once a code has been accepted.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Code      string    `gorm:"column:code;size:64;not null;index" json:"code"`
	IsActive  bool      `gorm:"column:is_active;not null;index" json:"isActive"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// DeviceBinding records which device fingerprint owns the session.
type DeviceBinding struct {
	ID              string    `gorm:"column:id;primaryKey;size:64"`
	UserID          string    `gorm:"column:user_id;size:64;not null"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;size:64;not null"`
	BoundAt         time.Time `gorm:"column:bound_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DeviceBinding) TableName() string {
	return "device_bindings"
}

// Models lists the session tables.
func Models() []interface{} {
	return []interface{}{&AccessCode{}, &User{}, &DeviceBinding{}}
}

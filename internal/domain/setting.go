package domain

// Setting 键值配置（对应 settings 表）
type Setting struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// SettingMaxContactsPerPhone 单个号码允许关联的最大（未归档）联系人数
const SettingMaxContactsPerPhone = "max_contacts_per_phone"

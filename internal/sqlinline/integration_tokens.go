// Package sqlinline keeps the raw SQL used by the service. Every statement
// starts with a "--sql <uuid>" marker line that infra.SQLRunner strips and logs.
package sqlinline

// QCreateIntegrationTokens creates the provider key table when missing.
const QCreateIntegrationTokens = `--sql 2f0c6a1e-9b4d-4c55-8e1a-7d3f5b9c2a60
create table if not exists integration_tokens (
    provider    text primary key,
    token       text not null,
    properties  jsonb not null default '{}'::jsonb,
    created_at  timestamptz not null default now(),
    updated_at  timestamptz not null default now()
);
`

const QSelectIntegrationToken = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select token
from integration_tokens
where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
